package service

import (
	"DevTinder/model"
	"context"
	"time"
)

// ConnectionEntry 连接列表项，只暴露对端信息，不回传调用方自己的 uuid
type ConnectionEntry struct {
	PeerUuid  string    `json:"peer_uuid"`
	Status    int8      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagePage 会话消息分页结果，页内按时间升序
type MessagePage struct {
	Messages   []*model.Message `json:"messages"`
	Total      int64            `json:"total"`
	TotalPages int64            `json:"total_pages"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// ==================== 连接服务 ====================

// ConnectionService 连接关系业务接口
type ConnectionService interface {
	// SendRequest 发起连接请求
	SendRequest(ctx context.Context, requesterUUID, recipientUUID string) (*model.Connection, error)

	// Accept 接受连接请求（仅接收方可操作）
	Accept(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error)

	// Reject 拒绝连接请求（仅接收方可操作，记录保留）
	Reject(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error)

	// Remove 解除已建立的连接（任意一方可操作，记录删除）
	Remove(ctx context.Context, userUUID, peerUUID string) error

	// ListReceivedRequests 获取收到的待处理请求
	ListReceivedRequests(ctx context.Context, userUUID string, page, pageSize int) ([]*ConnectionEntry, int64, error)

	// ListSentRequests 获取发出的待处理请求
	ListSentRequests(ctx context.Context, userUUID string, page, pageSize int) ([]*ConnectionEntry, int64, error)

	// ListConnections 获取已建立的连接
	ListConnections(ctx context.Context, userUUID string, page, pageSize int) ([]*ConnectionEntry, int64, error)

	// IsConnected 检查两个用户是否已建立连接
	IsConnected(ctx context.Context, userUUID, peerUUID string) (bool, error)
}

// ==================== 消息服务 ====================

// MessageService 消息业务接口
type MessageService interface {
	// Send 发送消息，仅允许已建立连接的双方互发
	// 去重窗口内的重复提交返回已有记录而不是新消息，duplicated 为 true；
	// 此时调用方不应再向接收方二次投递。
	Send(ctx context.Context, senderUUID, recipientUUID, content string) (msg *model.Message, duplicated bool, err error)

	// History 获取与 peerUUID 的会话历史
	// 页码以最新消息为锚点：page=1 为最近的 pageSize 条，页内按时间升序。
	History(ctx context.Context, userUUID, peerUUID string, page, pageSize int) (*MessagePage, error)

	// UnreadCount 获取未读消息总数
	UnreadCount(ctx context.Context, userUUID string) (int64, error)

	// MarkRead 标记来自 peerUUID 的消息已读，返回影响条数
	MarkRead(ctx context.Context, userUUID, peerUUID string) (int64, error)
}
