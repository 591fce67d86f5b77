package service

import (
	"context"
	"strings"

	"DevTinder/apps/server/internal/repository"
	"DevTinder/consts"
	"DevTinder/model"
	"DevTinder/pkg/errs"
	"DevTinder/pkg/logger"
	"DevTinder/pkg/util"
)

// messageServiceImpl 消息服务实现
type messageServiceImpl struct {
	msgRepo  repository.IMessageRepository
	connRepo repository.IConnectionRepository
}

// NewMessageService 创建消息服务实例
func NewMessageService(msgRepo repository.IMessageRepository, connRepo repository.IConnectionRepository) MessageService {
	return &messageServiceImpl{
		msgRepo:  msgRepo,
		connRepo: connRepo,
	}
}

// Send 发送消息
// 业务流程：
//  1. 内容去空白后校验非空
//  2. 校验双方已建立连接
//  3. 写入消息（去重窗口内的重复提交返回已有记录）
//
// 错误码映射：
//   - consts.CodeSelfConnection: 给自己发消息
//   - consts.CodeEmptyContent: 内容为空
//   - consts.CodeNotConnected: 双方未建立连接
func (s *messageServiceImpl) Send(ctx context.Context, senderUUID, recipientUUID, content string) (*model.Message, bool, error) {
	if senderUUID == recipientUUID {
		return nil, false, errs.New(consts.CodeSelfConnection)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false, errs.New(consts.CodeEmptyContent)
	}

	connected, err := s.connRepo.IsConnected(ctx, senderUUID, recipientUUID)
	if err != nil {
		logger.Error(ctx, "检查连接状态失败", logger.ErrorField("error", err))
		return nil, false, errs.Wrap(consts.CodeInternalError, err)
	}
	if !connected {
		return nil, false, errs.New(consts.CodeNotConnected)
	}

	msg := &model.Message{
		SenderUuid:      senderUUID,
		RecipientUuid:   recipientUUID,
		ConversationKey: util.ConversationKey(senderUUID, recipientUUID),
		Content:         content,
	}
	saved, duplicated, err := s.msgRepo.Append(ctx, msg)
	if err != nil {
		logger.Error(ctx, "消息写入失败",
			logger.ErrorField("error", err),
			logger.String("sender_uuid", senderUUID),
			logger.String("recipient_uuid", recipientUUID),
		)
		return nil, false, errs.Wrap(consts.CodeMessageSendFail, err)
	}

	if duplicated {
		// 客户端重发（HTTP 与长连接双路提交同一条消息）
		logger.Info(ctx, "消息命中去重窗口，返回已有记录",
			logger.Int64("message_id", saved.Id),
			logger.String("sender_uuid", senderUUID),
		)
	}
	return saved, duplicated, nil
}

// History 获取会话历史
func (s *messageServiceImpl) History(ctx context.Context, userUUID, peerUUID string, page, pageSize int) (*MessagePage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	conversationKey := util.ConversationKey(userUUID, peerUUID)
	messages, total, err := s.msgRepo.ListByConversation(ctx, conversationKey, page, pageSize)
	if err != nil {
		logger.Error(ctx, "查询会话历史失败",
			logger.ErrorField("error", err),
			logger.String("user_uuid", userUUID),
			logger.String("peer_uuid", peerUUID),
		)
		return nil, errs.Wrap(consts.CodeInternalError, err)
	}

	totalPages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		totalPages++
	}
	return &MessagePage{
		Messages:   messages,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// UnreadCount 获取未读消息总数
func (s *messageServiceImpl) UnreadCount(ctx context.Context, userUUID string) (int64, error) {
	count, err := s.msgRepo.UnreadCount(ctx, userUUID)
	if err != nil {
		logger.Error(ctx, "查询未读消息数失败", logger.ErrorField("error", err))
		return 0, errs.Wrap(consts.CodeInternalError, err)
	}
	return count, nil
}

// MarkRead 标记来自 peerUUID 的消息已读
func (s *messageServiceImpl) MarkRead(ctx context.Context, userUUID, peerUUID string) (int64, error) {
	affected, err := s.msgRepo.MarkConversationRead(ctx, userUUID, peerUUID)
	if err != nil {
		logger.Error(ctx, "标记消息已读失败",
			logger.ErrorField("error", err),
			logger.String("user_uuid", userUUID),
			logger.String("peer_uuid", peerUUID),
		)
		return 0, errs.Wrap(consts.CodeInternalError, err)
	}
	return affected, nil
}
