package repository

import (
	"context"
	"strconv"
	"time"

	"DevTinder/apps/server/mq"
	rediskey "DevTinder/consts/redisKey"
	"DevTinder/model"
	"DevTinder/pkg/logger"
	"DevTinder/pkg/util"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// messageDedupWindow 消息去重窗口
// 窗口内相同 发送方+接收方+内容 的写入视为客户端重发，返回已有记录。
const messageDedupWindow = 2 * time.Second

type messageRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewMessageRepository 创建消息 Repository
// redisClient 为 nil 时未读计数直接回源 MySQL。
func NewMessageRepository(db *gorm.DB, redisClient *redis.Client) IMessageRepository {
	return &messageRepositoryImpl{db: db, redisClient: redisClient}
}

// Append 追加一条消息；在去重窗口内命中重复时返回已有记录
func (r *messageRepositoryImpl) Append(ctx context.Context, msg *model.Message) (*model.Message, bool, error) {
	// ==================== 1. 去重窗口检查 ====================
	windowStart := time.Now().Add(-messageDedupWindow)
	var existing model.Message
	err := r.db.WithContext(ctx).
		Where("sender_uuid = ? AND recipient_uuid = ? AND content = ? AND created_at >= ?",
			msg.SenderUuid, msg.RecipientUuid, msg.Content, windowStart).
		Order("created_at DESC").
		First(&existing).Error
	if err == nil {
		return &existing, true, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, WrapDBError(err)
	}

	// ==================== 2. 写入 MySQL ====================
	if msg.Id == 0 {
		msg.Id = util.NextID()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, false, WrapDBError(err)
	}

	// ==================== 3. 递增接收方未读计数（尽力而为） ====================
	r.incrementUnread(ctx, msg.RecipientUuid)

	return msg, false, nil
}

// incrementUnread 递增未读计数，失败时走 Kafka 重试
func (r *messageRepositoryImpl) incrementUnread(ctx context.Context, recipientUUID string) {
	if r.redisClient == nil || recipientUUID == "" {
		return
	}

	notifyKey := rediskey.UnreadMessageKey(recipientUUID)
	expireSeconds := int(rediskey.UnreadMessageTTL.Seconds())
	luaScript := redis.NewScript(luaIncrementWithExpire)
	_, err := luaScript.Run(ctx, r.redisClient, []string{notifyKey}, expireSeconds).Result()
	if err != nil && err != redis.Nil {
		if isRedisWrongType(err) {
			_ = r.redisClient.Del(ctx, notifyKey).Err()
			return
		}
		// 计数丢失会导致红点不准，发送到重试队列补偿
		task := mq.BuildLuaTask(luaIncrementWithExpire, []string{notifyKey}, expireSeconds).
			WithSource("message_repository.incrementUnread")
		LogAndRetryRedisError(ctx, task, err)
	}
}

// newestAnchoredWindow 计算以最新消息为锚点的分页窗口。
// 返回按时间升序排列时的 offset 与 limit：page=1 对应最近的 pageSize 条，
// page=2 对应再往前的 pageSize 条，最旧的一页可能不满。
// 窗口超出范围时 limit 为 0。
func newestAnchoredWindow(total int64, page, pageSize int) (offset, limit int) {
	end := total - int64(page-1)*int64(pageSize)
	if end <= 0 {
		return 0, 0
	}
	start := end - int64(pageSize)
	if start < 0 {
		start = 0
	}
	return int(start), int(end - start)
}

// ListByConversation 按会话分页获取消息
// 页码以最新消息为锚点，页内按时间升序返回。
func (r *messageRepositoryImpl) ListByConversation(ctx context.Context, conversationKey string, page, pageSize int) ([]*model.Message, int64, error) {
	// 兜底分页参数
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	var total int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_key = ?", conversationKey).
		Count(&total).Error
	if err != nil {
		return nil, 0, WrapDBError(err)
	}

	offset, limit := newestAnchoredWindow(total, page, pageSize)
	if limit == 0 {
		return []*model.Message{}, total, nil
	}

	var messages []*model.Message
	err = r.db.WithContext(ctx).
		Where("conversation_key = ?", conversationKey).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, WrapDBError(err)
	}
	return messages, total, nil
}

// UnreadCount 获取用户未读消息总数
// 优先读 Redis 计数器，未命中时回源 MySQL 并回填。
func (r *messageRepositoryImpl) UnreadCount(ctx context.Context, userUUID string) (int64, error) {
	if userUUID == "" {
		return 0, nil
	}

	if r.redisClient != nil {
		notifyKey := rediskey.UnreadMessageKey(userUUID)
		val, err := r.redisClient.Get(ctx, notifyKey).Result()
		if err == nil {
			count, convErr := strconv.ParseInt(val, 10, 64)
			if convErr != nil {
				logger.Warn(ctx, "未读数量解析失败",
					logger.String("value", val),
					logger.ErrorField("error", convErr),
				)
				_ = r.redisClient.Del(ctx, notifyKey).Err()
			} else {
				if count < 0 {
					count = 0
				}
				return count, nil
			}
		} else if err != redis.Nil {
			LogRedisError(ctx, err)
		}
	}

	// 回源 MySQL
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("recipient_uuid = ? AND is_read = ?", userUUID, false).
		Count(&count).Error
	if err != nil {
		return 0, WrapDBError(err)
	}

	// 回填计数器（尽力而为）
	if r.redisClient != nil && count > 0 {
		notifyKey := rediskey.UnreadMessageKey(userUUID)
		if err := r.redisClient.Set(ctx, notifyKey, count, rediskey.UnreadMessageTTL).Err(); err != nil && err != redis.Nil {
			LogRedisError(ctx, err)
		}
	}
	return count, nil
}

// MarkConversationRead 标记来自 peerUUID 的消息为已读，返回影响行数
// 计数器直接删除，下一次读取会回源重建，避免 DECR 出现负数。
func (r *messageRepositoryImpl) MarkConversationRead(ctx context.Context, userUUID, peerUUID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("recipient_uuid = ? AND sender_uuid = ? AND is_read = ?", userUUID, peerUUID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, WrapDBError(result.Error)
	}

	if r.redisClient != nil && result.RowsAffected > 0 {
		notifyKey := rediskey.UnreadMessageKey(userUUID)
		if err := r.redisClient.Del(ctx, notifyKey).Err(); err != nil && err != redis.Nil {
			task := mq.BuildDelTask(notifyKey).
				WithSource("message_repository.markConversationRead")
			LogAndRetryRedisError(ctx, task, err)
		}
	}
	return result.RowsAffected, nil
}
