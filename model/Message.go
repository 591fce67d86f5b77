package model

import (
	"time"
)

// Message 私聊消息（扁平表，不做嵌入数组）。
// 设计要点：
// - id 由服务端雪花算法分配，客户端临时 id 永不入库；
// - conversation_key 对参与双方做无序归一（见 util.ConversationKey），
//   同一会话的消息无论谁发起都落在同一个 key 下；
// - 排序以 created_at 为准，并发写入时间相同时以 id 做二级排序，
//   保证分页游标稳定。
type Message struct {
	Id              int64     `gorm:"column:id;primaryKey;comment:雪花id"`
	SenderUuid      string    `gorm:"column:sender_uuid;type:char(36);not null;index;comment:发送方uuid"`
	RecipientUuid   string    `gorm:"column:recipient_uuid;type:char(36);not null;index:idx_recipient_read;comment:接收方uuid"`
	ConversationKey string    `gorm:"column:conversation_key;type:char(64);not null;index:idx_conv_created,priority:1;comment:会话key(sha256)"`
	Content         string    `gorm:"column:content;type:text;not null;comment:消息内容"`
	Read            bool      `gorm:"column:is_read;not null;default:false;index:idx_recipient_read;comment:接收方是否已读"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;index:idx_conv_created,priority:2"`
}

func (Message) TableName() string { return "message" }
