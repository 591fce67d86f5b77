package rediskey

import (
	"fmt"
	"time"
)

// ==================== TTL 常量 ====================

const (
	// ConnectionAcceptedTTL 已接受连接关系缓存 TTL
	ConnectionAcceptedTTL = 24 * time.Hour
	// ConnectionAcceptedEmptyTTL 已接受连接关系空值缓存 TTL
	ConnectionAcceptedEmptyTTL = 5 * time.Minute

	// UnreadMessageTTL 未读消息计数 TTL
	UnreadMessageTTL = 7 * 24 * time.Hour

	// UserActiveTTL 用户活跃时间缓存 TTL
	UserActiveTTL = 45 * 24 * time.Hour
)

// 空值占位符，防止缓存穿透时写入不完整集合
const EmptyPlaceholder = "__EMPTY__"

// ==================== Key 构造函数 ====================

// ConnectionAcceptedKey 生成已接受连接关系 Key: conn:accepted:{user_uuid}
// Set 成员为与该用户互相连接的对端 uuid。
func ConnectionAcceptedKey(userUUID string) string {
	return fmt.Sprintf("conn:accepted:%s", userUUID)
}

// UnreadMessageKey 生成未读消息计数 Key: msg:unread:{user_uuid}
func UnreadMessageKey(userUUID string) string {
	return fmt.Sprintf("msg:unread:%s", userUUID)
}

// UserActiveKey 生成用户活跃时间 Key: user:active:{user_uuid}
func UserActiveKey(userUUID string) string {
	return fmt.Sprintf("user:active:%s", userUUID)
}

// SendRateLimitKey 生成消息发送限流 Key: rate:limit:send:{user_uuid}
func SendRateLimitKey(userUUID string) string {
	return fmt.Sprintf("rate:limit:send:%s", userUUID)
}
