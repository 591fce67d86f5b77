package repository

import (
	"context"

	"DevTinder/apps/server/mq"
	rediskey "DevTinder/consts/redisKey"
	"DevTinder/model"
	"DevTinder/pkg/async"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type connectionRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewConnectionRepository 创建连接关系 Repository
// redisClient 为 nil 时降级为 MySQL-Only 模式。
func NewConnectionRepository(db *gorm.DB, redisClient *redis.Client) IConnectionRepository {
	return &connectionRepositoryImpl{db: db, redisClient: redisClient}
}

// Create 创建连接请求（有向：requester -> recipient）
func (r *connectionRepositoryImpl) Create(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return conn, nil
}

// GetDirected 查询指定方向的连接记录
func (r *connectionRepositoryImpl) GetDirected(ctx context.Context, requesterUUID, recipientUUID string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.WithContext(ctx).
		Where("requester_uuid = ? AND recipient_uuid = ?", requesterUUID, recipientUUID).
		First(&conn).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &conn, nil
}

// GetBetween 查询两个用户之间任意方向的连接记录
func (r *connectionRepositoryImpl) GetBetween(ctx context.Context, userA, userB string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.WithContext(ctx).
		Where("(requester_uuid = ? AND recipient_uuid = ?) OR (requester_uuid = ? AND recipient_uuid = ?)",
			userA, userB, userB, userA).
		First(&conn).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &conn, nil
}

// UpdateStatus 更新连接状态
// 状态切换为已接受时增量更新双方的已连接缓存，其余状态使缓存失效。
func (r *connectionRepositoryImpl) UpdateStatus(ctx context.Context, id int64, status int8) error {
	var conn model.Connection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conn).Error
	if err != nil {
		return WrapDBError(err)
	}

	result := r.db.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return WrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}

	if r.redisClient != nil {
		if status == model.ConnectionStatusAccepted {
			r.addAcceptedPeerCacheAsync(ctx, conn.RequesterUuid, conn.RecipientUuid)
		} else {
			r.removeAcceptedPeerCacheAsync(ctx, conn.RequesterUuid, conn.RecipientUuid)
		}
	}
	return nil
}

// Delete 删除连接记录（解除连接）
func (r *connectionRepositoryImpl) Delete(ctx context.Context, id int64) error {
	var conn model.Connection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conn).Error
	if err != nil {
		return WrapDBError(err)
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Connection{})
	if result.Error != nil {
		return WrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}

	if r.redisClient != nil {
		r.removeAcceptedPeerCacheAsync(ctx, conn.RequesterUuid, conn.RecipientUuid)
	}
	return nil
}

// ListPendingReceived 获取收到的待处理请求列表
func (r *connectionRepositoryImpl) ListPendingReceived(ctx context.Context, recipientUUID string, page, pageSize int) ([]*model.Connection, int64, error) {
	return r.listByCondition(ctx, page, pageSize,
		"recipient_uuid = ? AND status = ?", recipientUUID, model.ConnectionStatusPending)
}

// ListPendingSent 获取发出的待处理请求列表
func (r *connectionRepositoryImpl) ListPendingSent(ctx context.Context, requesterUUID string, page, pageSize int) ([]*model.Connection, int64, error) {
	return r.listByCondition(ctx, page, pageSize,
		"requester_uuid = ? AND status = ?", requesterUUID, model.ConnectionStatusPending)
}

// ListAccepted 获取已建立连接的列表
func (r *connectionRepositoryImpl) ListAccepted(ctx context.Context, userUUID string, page, pageSize int) ([]*model.Connection, int64, error) {
	return r.listByCondition(ctx, page, pageSize,
		"(requester_uuid = ? OR recipient_uuid = ?) AND status = ?",
		userUUID, userUUID, model.ConnectionStatusAccepted)
}

func (r *connectionRepositoryImpl) listByCondition(ctx context.Context, page, pageSize int, query string, args ...interface{}) ([]*model.Connection, int64, error) {
	// 兜底分页参数
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var total int64
	err := r.db.WithContext(ctx).Model(&model.Connection{}).
		Where(query, args...).
		Count(&total).Error
	if err != nil {
		return nil, 0, WrapDBError(err)
	}

	var conns []*model.Connection
	err = r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&conns).Error
	if err != nil {
		return nil, 0, WrapDBError(err)
	}
	return conns, total, nil
}

// IsConnected 检查两个用户是否已建立连接
// 采用 Cache-Aside Pattern：优先查 Redis Set，未命中则回源 MySQL 并重建缓存
func (r *connectionRepositoryImpl) IsConnected(ctx context.Context, userUUID, peerUUID string) (bool, error) {
	if userUUID == "" || peerUUID == "" {
		return false, nil
	}

	if r.redisClient != nil {
		cacheKey := rediskey.ConnectionAcceptedKey(userUUID)

		// ==================== 1. 组合查询 Redis (Pipeline) ====================
		pipe := r.redisClient.Pipeline()
		existsCmd := pipe.Exists(ctx, cacheKey)
		memberCmd := pipe.SIsMember(ctx, cacheKey, peerUUID)

		// 概率续期优化：1% 的概率在读取时顺便续期
		if getRandomBool(0.01) {
			pipe.Expire(ctx, cacheKey, getRandomExpireTime(rediskey.ConnectionAcceptedTTL))
		}

		_, err := pipe.Exec(ctx)
		if err != nil && err != redis.Nil {
			if isRedisWrongType(err) {
				_ = r.redisClient.Del(ctx, cacheKey).Err()
			} else {
				// Redis 挂了，记录日志，降级去查 DB
				LogRedisError(ctx, err)
			}
		} else if err == nil && existsCmd.Val() > 0 {
			// 缓存命中
			if memberCmd.Err() == nil {
				return memberCmd.Val(), nil
			}
			LogRedisError(ctx, memberCmd.Err())
		}
		// 缓存未命中或异常，继续回源
	}

	// ==================== 2. 缓存未命中，回源查询 MySQL ====================
	var conns []model.Connection
	err := r.db.WithContext(ctx).
		Where("(requester_uuid = ? OR recipient_uuid = ?) AND status = ?",
			userUUID, userUUID, model.ConnectionStatusAccepted).
		Find(&conns).Error
	if err != nil {
		return false, WrapDBError(err)
	}

	// ==================== 3. 重建缓存 (Set) ====================
	r.rebuildAcceptedCacheAsync(ctx, userUUID, conns)

	for _, conn := range conns {
		if conn.Peer(userUUID) == peerUUID {
			return true, nil
		}
	}
	return false, nil
}

// addAcceptedPeerCacheAsync 异步向双方的已连接缓存写入对端
// 关键原则：只有 Key 存在时才增量添加，Key 不存在时不操作（让读接口负责全量加载）。
func (r *connectionRepositoryImpl) addAcceptedPeerCacheAsync(ctx context.Context, userUUID, peerUUID string) {
	async.RunSafe(ctx, func(runCtx context.Context) {
		pairs := []struct{ cacheKey, member string }{
			{rediskey.ConnectionAcceptedKey(userUUID), peerUUID},
			{rediskey.ConnectionAcceptedKey(peerUUID), userUUID},
		}
		luaScript := redis.NewScript(luaAddAcceptedPeerIfExists)
		expireSeconds := int(getRandomExpireTime(rediskey.ConnectionAcceptedTTL).Seconds())

		for _, pair := range pairs {
			_, err := luaScript.Run(runCtx, r.redisClient,
				[]string{pair.cacheKey},
				pair.member,
				expireSeconds,
			).Result()
			if err != nil && err != redis.Nil {
				if isRedisWrongType(err) {
					_ = r.redisClient.Del(runCtx, pair.cacheKey).Err()
					continue
				}
				// 写入失败走 Kafka 重试，保证双方缓存最终一致
				task := mq.BuildLuaTask(luaAddAcceptedPeerIfExists,
					[]string{pair.cacheKey}, pair.member, expireSeconds,
				).WithSource("connection_repository.addAcceptedPeer")
				LogAndRetryRedisError(runCtx, task, err)
			}
		}
	}, 0)
}

// removeAcceptedPeerCacheAsync 异步从双方的已连接缓存移除对端
func (r *connectionRepositoryImpl) removeAcceptedPeerCacheAsync(ctx context.Context, userUUID, peerUUID string) {
	async.RunSafe(ctx, func(runCtx context.Context) {
		pairs := []struct{ cacheKey, member string }{
			{rediskey.ConnectionAcceptedKey(userUUID), peerUUID},
			{rediskey.ConnectionAcceptedKey(peerUUID), userUUID},
		}
		luaScript := redis.NewScript(luaRemoveAcceptedPeerIfExists)
		expireSeconds := int(getRandomExpireTime(rediskey.ConnectionAcceptedTTL).Seconds())

		for _, pair := range pairs {
			_, err := luaScript.Run(runCtx, r.redisClient,
				[]string{pair.cacheKey},
				pair.member,
				expireSeconds,
			).Result()
			if err != nil && err != redis.Nil {
				if isRedisWrongType(err) {
					_ = r.redisClient.Del(runCtx, pair.cacheKey).Err()
					continue
				}
				task := mq.BuildLuaTask(luaRemoveAcceptedPeerIfExists,
					[]string{pair.cacheKey}, pair.member, expireSeconds,
				).WithSource("connection_repository.removeAcceptedPeer")
				LogAndRetryRedisError(runCtx, task, err)
			}
		}
	}, 0)
}

// rebuildAcceptedCacheAsync 异步重建已连接缓存（Set）
func (r *connectionRepositoryImpl) rebuildAcceptedCacheAsync(ctx context.Context, userUUID string, conns []model.Connection) {
	if r.redisClient == nil {
		return
	}
	cacheKey := rediskey.ConnectionAcceptedKey(userUUID)
	async.RunSafe(ctx, func(runCtx context.Context) {
		pipe := r.redisClient.Pipeline()
		pipe.Del(runCtx, cacheKey)

		if len(conns) == 0 {
			pipe.SAdd(runCtx, cacheKey, rediskey.EmptyPlaceholder)
			pipe.Expire(runCtx, cacheKey, rediskey.ConnectionAcceptedEmptyTTL)
		} else {
			members := make([]interface{}, 0, len(conns))
			for _, conn := range conns {
				peer := conn.Peer(userUUID)
				if peer == "" {
					continue
				}
				members = append(members, peer)
			}
			if len(members) > 0 {
				pipe.SAdd(runCtx, cacheKey, members...)
			}
			pipe.Expire(runCtx, cacheKey, getRandomExpireTime(rediskey.ConnectionAcceptedTTL))
		}

		if _, err := pipe.Exec(runCtx); err != nil && err != redis.Nil {
			if isRedisWrongType(err) {
				_ = r.redisClient.Del(runCtx, cacheKey).Err()
				return
			}
			LogRedisError(runCtx, err)
		}
	}, 0)
}
