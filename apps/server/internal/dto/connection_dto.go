package dto

import "time"

// ListRequest 通用分页查询参数
type ListRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"limit"`
}

// ConnectionItem 连接列表项，只携带对端信息
type ConnectionItem struct {
	PeerUuid  string    `json:"peer_uuid"`
	Status    int8      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectionListResponse 连接/请求列表响应
type ConnectionListResponse struct {
	List     []*ConnectionItem `json:"list"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ConnectionActionResponse 连接操作（申请/接受/拒绝）响应
type ConnectionActionResponse struct {
	PeerUuid string `json:"peer_uuid"`
	Status   int8   `json:"status"`
}
