package dto

// SendMessageRequest 发送消息请求体
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// MessageItem 消息项
// 雪花 ID 以字符串下发，避免前端 JSON 精度丢失。
type MessageItem struct {
	Id            int64  `json:"id,string"`
	SenderUuid    string `json:"sender_uuid"`
	RecipientUuid string `json:"recipient_uuid"`
	Content       string `json:"content"`
	Read          bool   `json:"read"`
	Timestamp     int64  `json:"timestamp"`
}

// MessageHistoryResponse 会话历史响应，页内按时间升序
type MessageHistoryResponse struct {
	List       []*MessageItem `json:"list"`
	Total      int64          `json:"total"`
	TotalPages int64          `json:"total_pages"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// UnreadCountResponse 未读消息数响应
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// MarkReadResponse 标记已读响应
type MarkReadResponse struct {
	Affected int64 `json:"affected"`
}
