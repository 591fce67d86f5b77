package manager

import "sync"

// SessionRegistry 管理所有在线 WebSocket 连接。
// 通道以用户自身的 uuid 为键，每个用户最多保留一条活跃连接，
// 下行投递是单跳的 "发给这个用户的通道"，与会话无关。
type SessionRegistry struct {
	mu       sync.RWMutex
	byUser   map[string]*Client
	shutdown bool
}

// NewSessionRegistry 创建会话注册表实例。
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[string]*Client),
	}
}

// Register 注册一个用户连接。
// 返回值 replaced 表示被新连接替换掉的旧连接（如果存在）。
// 调用方通常应主动关闭 replaced，确保同一用户最多一个活跃连接。
func (r *SessionRegistry) Register(userUUID string, client *Client) (replaced *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown || userUUID == "" {
		return nil
	}

	if old, ok := r.byUser[userUUID]; ok && old != client {
		replaced = old
	}
	r.byUser[userUUID] = client
	return replaced
}

// Unregister 注销一个连接。
// 只有当 map 中当前连接与入参完全一致时才删除，防止并发替换时误删新连接。
func (r *SessionRegistry) Unregister(userUUID string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUser[userUUID]
	if !ok || current != client {
		return
	}
	delete(r.byUser, userUUID)
}

// SendToUser 向指定用户的在线连接投递消息。
// 返回 false 表示用户不在线或写队列不可用；
// 离线用户不做排队，对方下次拉取历史时补齐。
func (r *SessionRegistry) SendToUser(userUUID string, msg []byte) bool {
	r.mu.RLock()
	client := r.byUser[userUUID]
	r.mu.RUnlock()
	if client == nil {
		return false
	}
	return client.Enqueue(msg)
}

// IsOnline 判断用户是否有活跃连接。
func (r *SessionRegistry) IsOnline(userUUID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userUUID]
	return ok
}

// Count 返回当前在线用户数。
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Shutdown 关闭全部连接并阻止后续注册。
// 用于进程优雅退出阶段，确保不再接收新连接并尽快释放资源。
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true

	clients := make([]*Client, 0, len(r.byUser))
	for _, client := range r.byUser {
		clients = append(clients, client)
	}
	r.byUser = make(map[string]*Client)
	r.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
