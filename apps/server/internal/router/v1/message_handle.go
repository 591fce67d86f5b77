package v1

import (
	"context"

	"DevTinder/apps/server/internal/dto"
	"DevTinder/apps/server/internal/middleware"
	"DevTinder/apps/server/internal/service"
	"DevTinder/consts"
	"DevTinder/model"
	"DevTinder/pkg/errs"
	"DevTinder/pkg/logger"
	"DevTinder/pkg/result"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息处理器
type MessageHandler struct {
	msgService service.MessageService
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(msgService service.MessageService) *MessageHandler {
	return &MessageHandler{
		msgService: msgService,
	}
}

// Send 发送消息接口（HTTP 兜底链路）
// @Summary 发送消息
// @Description 向目标用户发送消息，需双方已建立连接
// @Tags 消息接口
// @Accept json
// @Produce json
// @Param userId path string true "接收方uuid"
// @Param request body dto.SendMessageRequest true "消息内容"
// @Success 200 {object} dto.MessageItem
// @Router /api/v1/messages/{userId} [post]
func (h *MessageHandler) Send(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	peerUUID := c.Param("userId")
	if peerUUID == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	// 1. 绑定请求数据
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 参数错误由客户端输入导致,属于正常业务流程,不记录日志
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	// 2. 调用服务层处理业务逻辑（重复提交同样返回已有记录）
	msg, _, err := h.msgService.Send(ctx, userUUID, peerUUID, req.Content)
	if err != nil {
		h.fail(c, ctx, err, "发送消息服务内部错误")
		return
	}

	// 3. 返回成功响应
	result.Success(c, toMessageItem(msg))
}

// History 获取会话历史接口
// @Summary 获取会话历史
// @Description 分页获取与目标用户的会话消息，page=1 为最近一页
// @Tags 消息接口
// @Produce json
// @Param userId path string true "对端用户uuid"
// @Param page query int false "页码(默认1)"
// @Param limit query int false "每页数量(默认50)"
// @Success 200 {object} dto.MessageHistoryResponse
// @Router /api/v1/messages/{userId} [get]
func (h *MessageHandler) History(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	peerUUID := c.Param("userId")
	if peerUUID == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 50
	}

	page, err := h.msgService.History(ctx, userUUID, peerUUID, req.Page, req.PageSize)
	if err != nil {
		h.fail(c, ctx, err, "获取会话历史服务内部错误")
		return
	}

	items := make([]*dto.MessageItem, 0, len(page.Messages))
	for _, msg := range page.Messages {
		items = append(items, toMessageItem(msg))
	}
	result.Success(c, &dto.MessageHistoryResponse{
		List:       items,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}

// UnreadCount 获取未读消息数接口
// @Summary 获取未读消息数
// @Description 获取当前用户的未读消息总数
// @Tags 消息接口
// @Produce json
// @Success 200 {object} dto.UnreadCountResponse
// @Router /api/v1/messages/unread/count [get]
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	count, err := h.msgService.UnreadCount(ctx, userUUID)
	if err != nil {
		h.fail(c, ctx, err, "获取未读消息数服务内部错误")
		return
	}

	result.Success(c, &dto.UnreadCountResponse{Count: count})
}

// MarkRead 标记会话已读接口
// @Summary 标记会话已读
// @Description 将来自目标用户的消息全部标记为已读
// @Tags 消息接口
// @Produce json
// @Param userId path string true "对端用户uuid"
// @Success 200 {object} dto.MarkReadResponse
// @Router /api/v1/messages/{userId}/read [post]
func (h *MessageHandler) MarkRead(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	peerUUID := c.Param("userId")
	if peerUUID == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	affected, err := h.msgService.MarkRead(ctx, userUUID, peerUUID)
	if err != nil {
		h.fail(c, ctx, err, "标记会话已读服务内部错误")
		return
	}

	result.Success(c, &dto.MarkReadResponse{Affected: affected})
}

// fail 统一的错误响应：业务错误透传错误码，服务端错误记日志后返回 30001
func (h *MessageHandler) fail(c *gin.Context, ctx context.Context, err error, errMsg string) {
	code := errs.ExtractCode(err)
	if consts.IsNonServerError(int(code)) {
		result.Fail(c, nil, code)
		return
	}
	logger.Error(ctx, errMsg, logger.ErrorField("error", err))
	result.Fail(c, nil, consts.CodeInternalError)
}

func toMessageItem(msg *model.Message) *dto.MessageItem {
	return &dto.MessageItem{
		Id:            msg.Id,
		SenderUuid:    msg.SenderUuid,
		RecipientUuid: msg.RecipientUuid,
		Content:       msg.Content,
		Read:          msg.Read,
		Timestamp:     msg.CreatedAt.UnixMilli(),
	}
}
