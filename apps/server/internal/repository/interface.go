package repository

import (
	"DevTinder/model"
	"context"
)

// ==================== 连接关系 Repository ====================

// IConnectionRepository 连接关系数据访问接口
type IConnectionRepository interface {
	// Create 创建连接请求（有向：requester -> recipient）
	Create(ctx context.Context, conn *model.Connection) (*model.Connection, error)

	// GetDirected 查询指定方向的连接记录
	GetDirected(ctx context.Context, requesterUUID, recipientUUID string) (*model.Connection, error)

	// GetBetween 查询两个用户之间任意方向的连接记录
	GetBetween(ctx context.Context, userA, userB string) (*model.Connection, error)

	// UpdateStatus 更新连接状态
	UpdateStatus(ctx context.Context, id int64, status int8) error

	// Delete 删除连接记录（解除连接）
	Delete(ctx context.Context, id int64) error

	// ListPendingReceived 获取收到的待处理请求列表
	ListPendingReceived(ctx context.Context, recipientUUID string, page, pageSize int) ([]*model.Connection, int64, error)

	// ListPendingSent 获取发出的待处理请求列表
	ListPendingSent(ctx context.Context, requesterUUID string, page, pageSize int) ([]*model.Connection, int64, error)

	// ListAccepted 获取已建立连接的列表
	ListAccepted(ctx context.Context, userUUID string, page, pageSize int) ([]*model.Connection, int64, error)

	// IsConnected 检查两个用户是否已建立连接
	IsConnected(ctx context.Context, userUUID, peerUUID string) (bool, error)
}

// ==================== 消息 Repository ====================

// IMessageRepository 消息数据访问接口
type IMessageRepository interface {
	// Append 追加一条消息；在去重窗口内命中重复时返回已有记录
	// 返回值: duplicated=true 表示命中重复，未产生新记录
	Append(ctx context.Context, msg *model.Message) (saved *model.Message, duplicated bool, err error)

	// ListByConversation 按会话分页获取消息
	// 页码以最新消息为锚点：page=1 为最近的 pageSize 条，页内按时间升序
	ListByConversation(ctx context.Context, conversationKey string, page, pageSize int) ([]*model.Message, int64, error)

	// UnreadCount 获取用户未读消息总数
	UnreadCount(ctx context.Context, userUUID string) (int64, error)

	// MarkConversationRead 标记来自 peerUUID 的消息为已读，返回影响行数
	MarkConversationRead(ctx context.Context, userUUID, peerUUID string) (int64, error)
}
