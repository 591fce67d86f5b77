package svc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"DevTinder/apps/server/internal/manager"
	"DevTinder/apps/server/internal/service"
	"DevTinder/consts"
	rediskey "DevTinder/consts/redisKey"
	"DevTinder/model"
	"DevTinder/pkg/errs"
	"DevTinder/pkg/logger"
	"DevTinder/pkg/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

var (
	// ErrTokenRequired 表示握手参数中缺少 token。
	ErrTokenRequired = errors.New("token is required")
	// ErrTokenInvalid 表示 token 非法或已过期。
	ErrTokenInvalid = errors.New("token is invalid")
)

// 帧类型常量
const (
	FrameJoin             = "join"
	FrameJoinAck          = "join_ack"
	FrameSendMessage      = "send-message"
	FrameMessageDelivered = "message-delivered"
	FrameMessageSent      = "message-sent"
	FrameMessageError     = "message-error"
	FrameHeartbeat        = "heartbeat"
	FrameHeartbeatAck     = "heartbeat_ack"
	FrameError            = "error"
)

// 最近确认过的 client_temp_id 缓存容量
const seenTempIDCacheSize = 4096

// Session 保存连接鉴权后的身份信息。
// 该结构会在整个连接生命周期中复用，避免重复解析 token。
type Session struct {
	UserUUID string
	ClientIP string
}

// Envelope 定义 WebSocket 通用消息包格式。
// 约定：
// - Type: 消息类型（如 join/send-message/heartbeat）；
// - Data: 消息体（由上层按 Type 再解析）。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorData 定义 type=error 时的 data 结构。
type ErrorData struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// JoinData 定义 join 帧的 data 结构。
// 客户端在每次重连后都必须重新发送 join，服务端不跨连接保留会话。
type JoinData struct {
	UserUuid string `json:"user_uuid"`
}

// SendMessageData 定义 send-message 帧的 data 结构。
// ClientTempId 为客户端本地乐观消息的临时 ID，服务端原样带回用于对账。
type SendMessageData struct {
	RecipientUuid string `json:"recipient_uuid"`
	Content       string `json:"content"`
	ClientTempId  string `json:"client_temp_id"`
	Timestamp     int64  `json:"timestamp"`
}

// MessageDeliveredData 定义推送给接收方的 message-delivered 帧。
type MessageDeliveredData struct {
	Id         int64  `json:"id,string"`
	SenderUuid string `json:"sender_uuid"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

// MessageSentData 定义回执给发送方的 message-sent 帧。
// 携带临时 ID 到服务端 ID 的映射。
type MessageSentData struct {
	Id           int64  `json:"id,string"`
	ClientTempId string `json:"client_temp_id"`
}

// MessageErrorData 定义回执给发送方的 message-error 帧。
type MessageErrorData struct {
	Code         int32  `json:"code"`
	Message      string `json:"message"`
	ClientTempId string `json:"client_temp_id,omitempty"`
}

// ChatService 承载实时消息链路的核心业务逻辑。
// 投递语义：
// - message-delivered 只推给接收方，发送方依赖本地乐观副本；
// - message-sent 只回给发送方自己的连接；
// - 离线接收方不排队，靠历史拉取补齐。
type ChatService struct {
	registry    *manager.SessionRegistry
	msgService  service.MessageService
	redisClient *redis.Client

	// seenTempIDs 缓存最近确认过的 client_temp_id -> 服务端消息 ID，
	// 客户端断线重发同一帧时直接重放 message-sent，不再走写入链路。
	seenTempIDs *lru.Cache[string, int64]

	// appendBreaker 保护消息写入链路，存储故障时快速失败
	appendBreaker *gobreaker.CircuitBreaker
}

// NewChatService 创建实时消息服务实例。
func NewChatService(registry *manager.SessionRegistry, msgService service.MessageService, redisClient *redis.Client) *ChatService {
	seen, _ := lru.New[string, int64](seenTempIDCacheSize)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "message-append",
		MaxRequests: 3,                // 半开状态下最多允许 3 个请求尝试
		Interval:    15 * time.Second, // 清除计数的时间间隔
		Timeout:     45 * time.Second, // 熔断器开启后多久尝试进入半开状态
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 失败率超过 50% 且样本量足够时触发熔断
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "熔断器状态变化",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// 业务校验错误不计入失败率，只有存储故障才应触发熔断
			return err == nil || consts.IsNonServerError(int(errs.ExtractCode(err)))
		},
	})
	return &ChatService{
		registry:      registry,
		msgService:    msgService,
		redisClient:   redisClient,
		seenTempIDs:   seen,
		appendBreaker: breaker,
	}
}

// Authenticate 校验 WebSocket 握手参数。
// 握手只确认身份，通道订阅由后续的 join 帧完成。
func (s *ChatService) Authenticate(token, clientIP string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}

	claims, err := util.ParseToken(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.UserUUID == "" {
		return nil, ErrTokenInvalid
	}

	return &Session{
		UserUUID: claims.UserUUID,
		ClientIP: strings.TrimSpace(clientIP),
	}, nil
}

// HandleJoin 处理 join 帧。
// 执行流程：
// 1. 校验帧内身份与握手身份一致（不允许冒充他人订阅）；
// 2. 绑定连接身份并注册到 registry（同用户旧连接被替换关闭）；
// 3. 更新活跃时间并回 join_ack。
func (s *ChatService) HandleJoin(ctx context.Context, client *manager.Client, session *Session, raw json.RawMessage) {
	var data JoinData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			s.sendErrorFrame(ctx, client, consts.CodeBodyError)
			return
		}
	}
	// data 缺省时取握手身份，显式指定时必须一致
	if data.UserUuid != "" && data.UserUuid != session.UserUUID {
		s.sendErrorFrame(ctx, client, consts.CodeInvalidToken)
		return
	}

	client.Bind(session.UserUUID)
	if replaced := s.registry.Register(session.UserUUID, client); replaced != nil {
		replaced.Close()
	}
	s.touchActive(ctx, session.UserUUID)

	ack, err := s.MarshalEnvelope(FrameJoinAck, JoinData{UserUuid: session.UserUUID})
	if err != nil {
		logger.Warn(ctx, "join 应答序列化失败", logger.ErrorField("error", err))
		return
	}
	if !client.Enqueue(ack) {
		client.Close()
	}

	logger.Info(ctx, "用户已加入实时通道",
		logger.String("user_uuid", session.UserUUID),
		logger.Int("online_count", s.registry.Count()),
	)
}

// HandleHeartbeat 处理 heartbeat 帧，更新活跃时间并回 ack。
func (s *ChatService) HandleHeartbeat(ctx context.Context, client *manager.Client, session *Session) {
	s.touchActive(ctx, session.UserUUID)
	ack, err := s.MarshalEnvelope(FrameHeartbeatAck, nil)
	if err != nil {
		logger.Warn(ctx, "心跳应答序列化失败", logger.ErrorField("error", err))
		return
	}
	if !client.Enqueue(ack) {
		client.Close()
	}
}

// HandleSendMessage 处理 send-message 帧。
// 执行流程：
// 1. 未 join 的连接直接拒绝；
// 2. 限流与重发判重（client_temp_id 命中时重放 message-sent）；
// 3. 经熔断器写入消息（内部完成连接校验与去重窗口判重）；
// 4. 写入成功后：message-delivered 只推接收方，message-sent 只回发送方。
//
// 写入失败（含校验失败）时向发送方回 message-error，
// 避免客户端的乐观条目永远得不到确认。
func (s *ChatService) HandleSendMessage(ctx context.Context, client *manager.Client, session *Session, raw json.RawMessage) {
	if client.UserUUID() == "" {
		s.sendMessageError(ctx, client, consts.CodeParamError, "join required", "")
		return
	}

	var data SendMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.sendMessageError(ctx, client, consts.CodeBodyError, consts.GetMessage(consts.CodeBodyError), "")
		return
	}

	if !client.AllowInbound() {
		s.sendMessageError(ctx, client, consts.CodeTooManyRequests, consts.GetMessage(consts.CodeTooManyRequests), data.ClientTempId)
		return
	}

	// 断线重发判重：同一连接身份 + client_temp_id 已确认过则直接重放回执
	if data.ClientTempId != "" {
		replayKey := session.UserUUID + ":" + data.ClientTempId
		if msgID, ok := s.seenTempIDs.Get(replayKey); ok {
			s.sendMessageSent(ctx, client, msgID, data.ClientTempId)
			return
		}
	}

	var duplicated bool
	result, err := s.appendBreaker.Execute(func() (interface{}, error) {
		msg, dup, sendErr := s.msgService.Send(ctx, session.UserUUID, data.RecipientUuid, data.Content)
		duplicated = dup
		return msg, sendErr
	})
	if err != nil {
		code := errs.ExtractCode(err)
		message := errs.ExtractMessage(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			code = consts.CodeServiceUnavailable
			message = consts.GetMessage(consts.CodeServiceUnavailable)
		}
		if !consts.IsNonServerError(int(code)) {
			logger.Error(ctx, "实时消息写入失败",
				logger.ErrorField("error", err),
				logger.String("sender_uuid", session.UserUUID),
				logger.String("recipient_uuid", data.RecipientUuid),
			)
		}
		// 持久化失败同样回 message-error，不能让发送方的乐观条目悬空
		s.sendMessageError(ctx, client, code, message, data.ClientTempId)
		return
	}

	msg := result.(*model.Message)
	if data.ClientTempId != "" {
		s.seenTempIDs.Add(session.UserUUID+":"+data.ClientTempId, msg.Id)
	}

	// 先推接收方，再回发送方回执；两者都必须在写入成功之后。
	// 命中去重窗口说明另一条链路已经投递过，只补发送方回执。
	if !duplicated {
		s.deliverToRecipient(ctx, msg)
	}
	s.sendMessageSent(ctx, client, msg.Id, data.ClientTempId)
}

// OnDisconnect 在连接断开后触发，从 registry 注销。
func (s *ChatService) OnDisconnect(ctx context.Context, client *manager.Client) {
	userUUID := client.UserUUID()
	if userUUID == "" {
		return
	}
	s.registry.Unregister(userUUID, client)
	logger.Info(ctx, "用户已离开实时通道",
		logger.String("user_uuid", userUUID),
		logger.Int("online_count", s.registry.Count()),
	)
}

// deliverToRecipient 向接收方推送 message-delivered。
// 投递失败只记日志（at-most-once），接收方下次拉取历史时补齐。
func (s *ChatService) deliverToRecipient(ctx context.Context, msg *model.Message) {
	payload, err := s.MarshalEnvelope(FrameMessageDelivered, MessageDeliveredData{
		Id:         msg.Id,
		SenderUuid: msg.SenderUuid,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt.UnixMilli(),
	})
	if err != nil {
		logger.Warn(ctx, "message-delivered 序列化失败", logger.ErrorField("error", err))
		return
	}
	if !s.registry.SendToUser(msg.RecipientUuid, payload) {
		logger.Info(ctx, "接收方不在线，跳过实时投递",
			logger.String("recipient_uuid", msg.RecipientUuid),
			logger.Int64("message_id", msg.Id),
		)
	}
}

// sendMessageSent 向发送方自己的连接回 message-sent 回执。
func (s *ChatService) sendMessageSent(ctx context.Context, client *manager.Client, msgID int64, clientTempID string) {
	payload, err := s.MarshalEnvelope(FrameMessageSent, MessageSentData{
		Id:           msgID,
		ClientTempId: clientTempID,
	})
	if err != nil {
		logger.Warn(ctx, "message-sent 序列化失败", logger.ErrorField("error", err))
		return
	}
	if !client.Enqueue(payload) {
		client.Close()
	}
}

// sendMessageError 向发送方回 message-error 帧。
func (s *ChatService) sendMessageError(ctx context.Context, client *manager.Client, code int32, message, clientTempID string) {
	payload, err := s.MarshalEnvelope(FrameMessageError, MessageErrorData{
		Code:         code,
		Message:      message,
		ClientTempId: clientTempID,
	})
	if err != nil {
		logger.Warn(ctx, "message-error 序列化失败", logger.ErrorField("error", err))
		return
	}
	if !client.Enqueue(payload) {
		client.Close()
	}
}

// sendErrorFrame 发送 ws 协议层错误帧。
// 发送失败通常表示连接不可写，此时主动关闭连接避免资源泄漏。
func (s *ChatService) sendErrorFrame(ctx context.Context, client *manager.Client, code int32) {
	payload, err := s.MarshalEnvelope(FrameError, ErrorData{
		Code:    code,
		Message: consts.GetMessage(code),
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

// ParseEnvelope 解析客户端上行帧。
// 若 type 缺失或 JSON 不合法，会返回错误交由 handler 返回 error 帧。
func (s *ChatService) ParseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	envelope.Type = strings.TrimSpace(envelope.Type)
	if envelope.Type == "" {
		return nil, errors.New("type is required")
	}
	return &envelope, nil
}

// MarshalEnvelope 组装并序列化下行帧。
// 约定：data=nil 时省略 data 字段，避免无意义空对象。
func (s *ChatService) MarshalEnvelope(msgType string, data any) ([]byte, error) {
	envelope := map[string]any{
		"type": msgType,
	}
	if data != nil {
		envelope["data"] = data
	}
	return json.Marshal(envelope)
}

// touchActive 更新用户活跃时间到 Redis。
// Key 规则：user:active:{user_uuid} = unix 秒，每次写入都会续期 TTL。
func (s *ChatService) touchActive(ctx context.Context, userUUID string) {
	if s.redisClient == nil || userUUID == "" {
		return
	}

	key := rediskey.UserActiveKey(userUUID)
	if err := s.redisClient.Set(ctx, key, time.Now().Unix(), rediskey.UserActiveTTL).Err(); err != nil {
		logger.Warn(ctx, "更新用户活跃时间失败",
			logger.String("user_uuid", userUUID),
			logger.ErrorField("error", err),
		)
	}
}
