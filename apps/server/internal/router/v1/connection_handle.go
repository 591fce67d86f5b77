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

// ConnectionHandler 连接关系处理器
type ConnectionHandler struct {
	connService service.ConnectionService
}

// NewConnectionHandler 创建连接关系处理器
func NewConnectionHandler(connService service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{
		connService: connService,
	}
}

// SendRequest 发起连接请求接口
// @Summary 发起连接请求
// @Description 向目标用户发起连接请求
// @Tags 连接接口
// @Produce json
// @Param userId path string true "目标用户uuid"
// @Success 200 {object} dto.ConnectionActionResponse
// @Router /api/v1/connections/request/{userId} [post]
func (h *ConnectionHandler) SendRequest(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	peerUUID := c.Param("userId")
	if peerUUID == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	conn, err := h.connService.SendRequest(ctx, userUUID, peerUUID)
	if err != nil {
		h.fail(c, ctx, err, "发起连接请求服务内部错误")
		return
	}

	result.Success(c, &dto.ConnectionActionResponse{
		PeerUuid: conn.Peer(userUUID),
		Status:   conn.Status,
	})
}

// Accept 接受连接请求接口
// @Summary 接受连接请求
// @Description 接受来自目标用户的待处理请求
// @Tags 连接接口
// @Produce json
// @Param userId path string true "申请方uuid"
// @Success 200 {object} dto.ConnectionActionResponse
// @Router /api/v1/connections/accept/{userId} [post]
func (h *ConnectionHandler) Accept(c *gin.Context) {
	h.review(c, h.connService.Accept, "接受连接请求服务内部错误")
}

// Reject 拒绝连接请求接口
// @Summary 拒绝连接请求
// @Description 拒绝来自目标用户的待处理请求
// @Tags 连接接口
// @Produce json
// @Param userId path string true "申请方uuid"
// @Success 200 {object} dto.ConnectionActionResponse
// @Router /api/v1/connections/reject/{userId} [post]
func (h *ConnectionHandler) Reject(c *gin.Context) {
	h.review(c, h.connService.Reject, "拒绝连接请求服务内部错误")
}

func (h *ConnectionHandler) review(
	c *gin.Context,
	action func(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error),
	errMsg string,
) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	requesterUUID := c.Param("userId")
	if requesterUUID == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	conn, err := action(ctx, userUUID, requesterUUID)
	if err != nil {
		h.fail(c, ctx, err, errMsg)
		return
	}

	result.Success(c, &dto.ConnectionActionResponse{
		PeerUuid: conn.Peer(userUUID),
		Status:   conn.Status,
	})
}

// Remove 解除连接接口
// @Summary 解除连接
// @Description 删除与目标用户已建立的连接
// @Tags 连接接口
// @Produce json
// @Param userId path string true "对端用户uuid"
// @Success 200 {object} result.Response
// @Router /api/v1/connections/{userId} [delete]
func (h *ConnectionHandler) Remove(c *gin.Context) {
	ctx := middleware.NewContextWithGin(c)

	userUUID, _ := middleware.GetUserUUID(c)
	peerUUID := c.Param("userId")
	if peerUUID == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	if err := h.connService.Remove(ctx, userUUID, peerUUID); err != nil {
		h.fail(c, ctx, err, "解除连接服务内部错误")
		return
	}

	result.Success(c, nil)
}

// ListReceivedRequests 获取收到的请求列表接口
// @Summary 获取收到的连接请求
// @Description 获取收到的待处理连接请求列表
// @Tags 连接接口
// @Produce json
// @Param page query int false "页码(默认1)"
// @Param limit query int false "每页数量(默认20)"
// @Success 200 {object} dto.ConnectionListResponse
// @Router /api/v1/connections/requests [get]
func (h *ConnectionHandler) ListReceivedRequests(c *gin.Context) {
	h.list(c, h.connService.ListReceivedRequests, "获取收到的连接请求服务内部错误")
}

// ListSentRequests 获取发出的请求列表接口
// @Summary 获取发出的连接请求
// @Description 获取发出的待处理连接请求列表
// @Tags 连接接口
// @Produce json
// @Param page query int false "页码(默认1)"
// @Param limit query int false "每页数量(默认20)"
// @Success 200 {object} dto.ConnectionListResponse
// @Router /api/v1/connections/requests/sent [get]
func (h *ConnectionHandler) ListSentRequests(c *gin.Context) {
	h.list(c, h.connService.ListSentRequests, "获取发出的连接请求服务内部错误")
}

// ListConnections 获取连接列表接口
// @Summary 获取连接列表
// @Description 获取已建立连接的用户列表
// @Tags 连接接口
// @Produce json
// @Param page query int false "页码(默认1)"
// @Param limit query int false "每页数量(默认20)"
// @Success 200 {object} dto.ConnectionListResponse
// @Router /api/v1/connections [get]
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	h.list(c, h.connService.ListConnections, "获取连接列表服务内部错误")
}

func (h *ConnectionHandler) list(
	c *gin.Context,
	query func(ctx context.Context, userUUID string, page, pageSize int) ([]*service.ConnectionEntry, int64, error),
	errMsg string,
) {
	ctx := middleware.NewContextWithGin(c)

	// 1. 绑定查询参数
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		// 参数错误由客户端输入导致,属于正常业务流程,不记录日志
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	// 2. 设置默认值
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	userUUID, _ := middleware.GetUserUUID(c)
	entries, total, err := query(ctx, userUUID, req.Page, req.PageSize)
	if err != nil {
		h.fail(c, ctx, err, errMsg)
		return
	}

	items := make([]*dto.ConnectionItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, &dto.ConnectionItem{
			PeerUuid:  entry.PeerUuid,
			Status:    entry.Status,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: entry.UpdatedAt,
		})
	}
	result.Success(c, &dto.ConnectionListResponse{
		List:     items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// fail 统一的错误响应：业务错误透传错误码，服务端错误记日志后返回 30001
func (h *ConnectionHandler) fail(c *gin.Context, ctx context.Context, err error, errMsg string) {
	code := errs.ExtractCode(err)
	if consts.IsNonServerError(int(code)) {
		result.Fail(c, nil, code)
		return
	}
	logger.Error(ctx, errMsg, logger.ErrorField("error", err))
	result.Fail(c, nil, consts.CodeInternalError)
}
