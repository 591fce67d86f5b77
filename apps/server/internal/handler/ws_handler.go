package handler

import (
	"DevTinder/apps/server/internal/manager"
	"DevTinder/apps/server/internal/middleware"
	"DevTinder/apps/server/internal/svc"
	"DevTinder/consts"
	"DevTinder/pkg/logger"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 当前阶段默认放开来源校验，方便本地多端调试。
	// 生产环境建议按域名白名单收紧校验策略。
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// WSHandler 负责处理 /ws 接入请求。
// 职责边界：
// - 处理 Gin/HTTP 层参数、升级与错误响应；
// - 调用 svc 完成鉴权、join 与消息链路；
// - 连接生命周期内的注册/注销由 svc 通过 registry 完成。
type WSHandler struct {
	registry *manager.SessionRegistry
	chatSvc  *svc.ChatService
}

// NewWSHandler 创建 WebSocket 入口处理器。
func NewWSHandler(registry *manager.SessionRegistry, chatSvc *svc.ChatService) *WSHandler {
	return &WSHandler{registry: registry, chatSvc: chatSvc}
}

// ServeWS 处理 WebSocket 握手与接入。
// 执行流程：
// 1. 从 query 中读取 token，并获取 client_ip。
// 2. 调用 chatSvc.Authenticate 做身份确认（通道订阅由 join 帧完成）。
// 3. 构建连接级 context（注入 trace/user/ip）。
// 4. 完成协议升级并进入连接处理主循环。
func (h *WSHandler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	clientIP := c.ClientIP()

	session, err := h.chatSvc.Authenticate(token, clientIP)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	connCtx := context.Background()
	if traceID, exists := c.Get("trace_id"); exists {
		connCtx = context.WithValue(connCtx, "trace_id", traceID)
	}
	connCtx = context.WithValue(connCtx, "user_uuid", session.UserUUID)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(connCtx, "WebSocket 升级失败",
			logger.ErrorField("error", err),
		)
		return
	}

	h.handleConnection(connCtx, conn, session)
}

// handleConnection 承载单个连接的完整生命周期。
// 关键语义：
// - 身份在握手时确认，通道订阅在 join 帧时完成（每次重连都必须重新 join）；
// - 连接断开时从 registry 注销；
// - 日志里保留 user_uuid 便于排障。
func (h *WSHandler) handleConnection(ctx context.Context, conn *websocket.Conn, session *svc.Session) {
	client := manager.NewClient(conn)

	logger.Info(ctx, "WebSocket 连接已建立",
		logger.String("user_uuid", session.UserUUID),
		logger.String("client_ip", session.ClientIP),
	)

	client.Run(ctx, func(raw []byte) {
		h.handleMessage(ctx, client, session, raw)
	}, func() {
		h.chatSvc.OnDisconnect(ctx, client)
		middleware.SetWSOnline(h.registry.Count())
		logger.Info(ctx, "WebSocket 连接已断开",
			logger.String("user_uuid", session.UserUUID),
		)
	})
}

// handleMessage 处理客户端上行帧。
// 支持的帧类型：
// - join: 订阅本用户的下行通道，回 join_ack；
// - send-message: 消息发送链路，回执见 svc 层约定；
// - heartbeat: 更新活跃时间并返回 heartbeat_ack。
func (h *WSHandler) handleMessage(ctx context.Context, client *manager.Client, session *svc.Session, raw []byte) {
	envelope, err := h.chatSvc.ParseEnvelope(raw)
	if err != nil {
		h.sendErrorFrame(ctx, client, consts.CodeBodyError, "invalid frame format")
		return
	}

	switch envelope.Type {
	case svc.FrameJoin:
		h.chatSvc.HandleJoin(ctx, client, session, envelope.Data)
		middleware.SetWSOnline(h.registry.Count())
	case svc.FrameSendMessage:
		h.chatSvc.HandleSendMessage(ctx, client, session, envelope.Data)
	case svc.FrameHeartbeat:
		h.chatSvc.HandleHeartbeat(ctx, client, session)
	default:
		h.sendErrorFrame(ctx, client, consts.CodeMethodNotAllowed, "unsupported message type")
	}
}

// sendErrorFrame 发送 ws 协议层错误帧。
// 发送失败通常表示连接不可写，此时主动关闭连接避免资源泄漏。
func (h *WSHandler) sendErrorFrame(ctx context.Context, client *manager.Client, code int32, message string) {
	payload, err := h.chatSvc.MarshalEnvelope(svc.FrameError, svc.ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		logger.Warn(ctx, "错误帧序列化失败",
			logger.Int("code", int(code)),
			logger.ErrorField("error", err),
		)
		return
	}
	if !client.Enqueue(payload) {
		client.Close()
	}
}

// writeAuthError 将鉴权错误映射为 HTTP 握手阶段错误响应。
// 说明：握手前还未升级为 WebSocket，因此用 HTTP JSON 返回更直观。
func (h *WSHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, svc.ErrTokenRequired):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
	case errors.Is(err, svc.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "token invalid or expired",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal error",
		})
	}
}
