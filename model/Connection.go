package model

import (
	"time"
)

// 连接状态枚举。
// 状态机：pending -> accepted / rejected（单条记录内终态）；
// accepted 记录被 remove 时整条删除，之后才允许重新发起申请。
const (
	ConnectionStatusPending  int8 = 0 // 待处理
	ConnectionStatusAccepted int8 = 1 // 已接受
	ConnectionStatusRejected int8 = 2 // 已拒绝
)

// Connection 维护用户之间的定向连接申请记录。
// 约束：uniqueIndex:uidx_requester_recipient 只防住同方向重复申请，
// 反方向的去重由 service 层双向查询保证（并发窗口内的竞态按产品约定容忍）。
type Connection struct {
	Id            int64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	RequesterUuid string    `gorm:"column:requester_uuid;type:char(36);not null;uniqueIndex:uidx_requester_recipient;index:idx_requester_status;comment:申请方uuid"`
	RecipientUuid string    `gorm:"column:recipient_uuid;type:char(36);not null;uniqueIndex:uidx_requester_recipient;index:idx_recipient_status;comment:接收方uuid"`
	Status        int8      `gorm:"column:status;not null;default:0;index:idx_requester_status;index:idx_recipient_status;comment:状态 0.待处理 1.已接受 2.已拒绝"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Connection) TableName() string { return "connection" }

// Peer 返回相对 userUUID 的对端用户。
// 消费方永远只拿对端 uuid，不会看到自己的 uuid 重复出现。
func (c *Connection) Peer(userUUID string) string {
	if c.RequesterUuid == userUUID {
		return c.RecipientUuid
	}
	return c.RequesterUuid
}
