package service

import (
	"context"
	"errors"

	"DevTinder/apps/server/internal/repository"
	"DevTinder/consts"
	"DevTinder/model"
	"DevTinder/pkg/errs"
	"DevTinder/pkg/logger"
)

// connectionServiceImpl 连接关系服务实现
type connectionServiceImpl struct {
	connRepo repository.IConnectionRepository
}

// NewConnectionService 创建连接服务实例
func NewConnectionService(connRepo repository.IConnectionRepository) ConnectionService {
	return &connectionServiceImpl{connRepo: connRepo}
}

// SendRequest 发起连接请求
// 业务流程：
//  1. 校验不能连接自己
//  2. 检查双方之间是否已有记录（任意方向）
//  3. 创建 pending 记录
//
// 错误码映射：
//   - consts.CodeSelfConnection: 向自己发起请求
//   - consts.CodeAlreadyConnected: 双方已建立连接
//   - consts.CodeRequestAlreadySent: 己方已有未处理（或被拒绝保留）的请求
//   - consts.CodeRequestAlreadyInbound: 对方已向己方发起过请求
func (s *connectionServiceImpl) SendRequest(ctx context.Context, requesterUUID, recipientUUID string) (*model.Connection, error) {
	if requesterUUID == recipientUUID {
		return nil, errs.New(consts.CodeSelfConnection)
	}

	existing, err := s.connRepo.GetBetween(ctx, requesterUUID, recipientUUID)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		logger.Error(ctx, "查询连接记录失败", logger.ErrorField("error", err))
		return nil, errs.Wrap(consts.CodeInternalError, err)
	}

	if existing != nil {
		if existing.Status == model.ConnectionStatusAccepted {
			return nil, errs.New(consts.CodeAlreadyConnected)
		}
		// pending 或 rejected 记录都会阻塞新请求，rejected 需要 Remove 清除后才能重新发起
		if existing.RequesterUuid == requesterUUID {
			return nil, errs.New(consts.CodeRequestAlreadySent)
		}
		return nil, errs.New(consts.CodeRequestAlreadyInbound)
	}

	conn := &model.Connection{
		RequesterUuid: requesterUUID,
		RecipientUuid: recipientUUID,
		Status:        model.ConnectionStatusPending,
	}
	saved, err := s.connRepo.Create(ctx, conn)
	if err != nil {
		// 并发下的同向重复请求由唯一索引兜底
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, errs.New(consts.CodeRequestAlreadySent)
		}
		logger.Error(ctx, "创建连接请求失败", logger.ErrorField("error", err))
		return nil, errs.Wrap(consts.CodeInternalError, err)
	}

	logger.Info(ctx, "连接请求已创建",
		logger.String("requester_uuid", requesterUUID),
		logger.String("recipient_uuid", recipientUUID),
	)
	return saved, nil
}

// Accept 接受连接请求
// 要求存在 requester -> recipient 方向的 pending 记录。
func (s *connectionServiceImpl) Accept(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error) {
	return s.review(ctx, recipientUUID, requesterUUID, model.ConnectionStatusAccepted)
}

// Reject 拒绝连接请求
// 记录保留为 rejected，不会自动清除。
func (s *connectionServiceImpl) Reject(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error) {
	return s.review(ctx, recipientUUID, requesterUUID, model.ConnectionStatusRejected)
}

// review 审核请求，仅接收方可操作
func (s *connectionServiceImpl) review(ctx context.Context, recipientUUID, requesterUUID string, status int8) (*model.Connection, error) {
	conn, err := s.connRepo.GetDirected(ctx, requesterUUID, recipientUUID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, errs.New(consts.CodeNoSuchRequest)
		}
		logger.Error(ctx, "查询连接请求失败", logger.ErrorField("error", err))
		return nil, errs.Wrap(consts.CodeInternalError, err)
	}
	if conn.Status != model.ConnectionStatusPending {
		// 已处理过的请求不允许重复审核
		return nil, errs.New(consts.CodeNoSuchRequest)
	}

	if err := s.connRepo.UpdateStatus(ctx, conn.Id, status); err != nil {
		logger.Error(ctx, "更新连接状态失败",
			logger.ErrorField("error", err),
			logger.Int64("connection_id", conn.Id),
		)
		return nil, errs.Wrap(consts.CodeInternalError, err)
	}

	conn.Status = status
	logger.Info(ctx, "连接请求已处理",
		logger.String("requester_uuid", requesterUUID),
		logger.String("recipient_uuid", recipientUUID),
		logger.Int("status", int(status)),
	)
	return conn, nil
}

// Remove 解除已建立的连接
// 只有 accepted 记录可以删除；删除后双方可重新发起请求。
func (s *connectionServiceImpl) Remove(ctx context.Context, userUUID, peerUUID string) error {
	conn, err := s.connRepo.GetBetween(ctx, userUUID, peerUUID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return errs.New(consts.CodeNotConnected)
		}
		logger.Error(ctx, "查询连接记录失败", logger.ErrorField("error", err))
		return errs.Wrap(consts.CodeInternalError, err)
	}
	if conn.Status != model.ConnectionStatusAccepted {
		return errs.New(consts.CodeNotConnected)
	}

	if err := s.connRepo.Delete(ctx, conn.Id); err != nil {
		logger.Error(ctx, "删除连接记录失败",
			logger.ErrorField("error", err),
			logger.Int64("connection_id", conn.Id),
		)
		return errs.Wrap(consts.CodeInternalError, err)
	}

	logger.Info(ctx, "连接已解除",
		logger.String("user_uuid", userUUID),
		logger.String("peer_uuid", peerUUID),
	)
	return nil
}

// ListReceivedRequests 获取收到的待处理请求
func (s *connectionServiceImpl) ListReceivedRequests(ctx context.Context, userUUID string, page, pageSize int) ([]*ConnectionEntry, int64, error) {
	conns, total, err := s.connRepo.ListPendingReceived(ctx, userUUID, page, pageSize)
	if err != nil {
		logger.Error(ctx, "查询收到的连接请求失败", logger.ErrorField("error", err))
		return nil, 0, errs.Wrap(consts.CodeInternalError, err)
	}
	return toEntries(userUUID, conns), total, nil
}

// ListSentRequests 获取发出的待处理请求
func (s *connectionServiceImpl) ListSentRequests(ctx context.Context, userUUID string, page, pageSize int) ([]*ConnectionEntry, int64, error) {
	conns, total, err := s.connRepo.ListPendingSent(ctx, userUUID, page, pageSize)
	if err != nil {
		logger.Error(ctx, "查询发出的连接请求失败", logger.ErrorField("error", err))
		return nil, 0, errs.Wrap(consts.CodeInternalError, err)
	}
	return toEntries(userUUID, conns), total, nil
}

// ListConnections 获取已建立的连接
func (s *connectionServiceImpl) ListConnections(ctx context.Context, userUUID string, page, pageSize int) ([]*ConnectionEntry, int64, error) {
	conns, total, err := s.connRepo.ListAccepted(ctx, userUUID, page, pageSize)
	if err != nil {
		logger.Error(ctx, "查询连接列表失败", logger.ErrorField("error", err))
		return nil, 0, errs.Wrap(consts.CodeInternalError, err)
	}
	return toEntries(userUUID, conns), total, nil
}

// IsConnected 检查两个用户是否已建立连接
func (s *connectionServiceImpl) IsConnected(ctx context.Context, userUUID, peerUUID string) (bool, error) {
	connected, err := s.connRepo.IsConnected(ctx, userUUID, peerUUID)
	if err != nil {
		logger.Error(ctx, "检查连接状态失败", logger.ErrorField("error", err))
		return false, errs.Wrap(consts.CodeInternalError, err)
	}
	return connected, nil
}

// toEntries 转换为列表项，只保留对端 uuid
func toEntries(userUUID string, conns []*model.Connection) []*ConnectionEntry {
	entries := make([]*ConnectionEntry, 0, len(conns))
	for _, conn := range conns {
		entries = append(entries, &ConnectionEntry{
			PeerUuid:  conn.Peer(userUUID),
			Status:    conn.Status,
			CreatedAt: conn.CreatedAt,
			UpdatedAt: conn.UpdatedAt,
		})
	}
	return entries
}
