package svc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"DevTinder/apps/server/internal/manager"
	"DevTinder/apps/server/internal/service"
	"DevTinder/consts"
	"DevTinder/model"
	"DevTinder/pkg/errs"
	"DevTinder/pkg/logger"
	"DevTinder/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var chatLoggerOnce sync.Once

func initChatTestLogger() {
	chatLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

type fakeMessageServiceForChat struct {
	sendFn func(context.Context, string, string, string) (*model.Message, bool, error)
}

func (f *fakeMessageServiceForChat) Send(ctx context.Context, senderUUID, recipientUUID, content string) (*model.Message, bool, error) {
	if f.sendFn == nil {
		return &model.Message{
			Id:            1,
			SenderUuid:    senderUUID,
			RecipientUuid: recipientUUID,
			Content:       content,
			CreatedAt:     time.Now(),
		}, false, nil
	}
	return f.sendFn(ctx, senderUUID, recipientUUID, content)
}

func (f *fakeMessageServiceForChat) History(_ context.Context, _, _ string, _, _ int) (*service.MessagePage, error) {
	return nil, nil
}

func (f *fakeMessageServiceForChat) UnreadCount(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (f *fakeMessageServiceForChat) MarkRead(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

// wsTestPeer 一端真实 WebSocket 连接：服务端侧的 manager.Client + 客户端侧的裸连接。
type wsTestPeer struct {
	client   *manager.Client
	peerConn *websocket.Conn
}

// readFrame 从客户端侧读取一帧并解析 Envelope。
func (p *wsTestPeer) readFrame(t *testing.T) *Envelope {
	t.Helper()
	_ = p.peerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := p.peerConn.ReadMessage()
	require.NoError(t, err)
	var envelope Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	return &envelope
}

// expectNoFrame 断言客户端侧在短窗口内收不到任何帧。
func (p *wsTestPeer) expectNoFrame(t *testing.T) {
	t.Helper()
	_ = p.peerConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := p.peerConn.ReadMessage()
	require.Error(t, err)
}

// newWSTestPeer 通过 httptest 搭一条真实的 WebSocket 连接，
// 返回服务端包装对象和客户端侧连接，写循环已启动。
func newWSTestPeer(t *testing.T) *wsTestPeer {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}
	clientCh := make(chan *manager.Client, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := manager.NewClient(conn)
		clientCh <- client
		client.Run(context.Background(), nil, nil)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	peerConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peerConn.Close() })

	select {
	case client := <-clientCh:
		return &wsTestPeer{client: client, peerConn: peerConn}
	case <-time.After(2 * time.Second):
		t.Fatal("服务端连接未建立")
		return nil
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestChatServiceAuthenticate(t *testing.T) {
	initChatTestLogger()
	registry := manager.NewSessionRegistry()
	svc := NewChatService(registry, &fakeMessageServiceForChat{}, nil)

	t.Run("missing_token", func(t *testing.T) {
		session, err := svc.Authenticate("  ", "127.0.0.1")
		require.Nil(t, session)
		require.ErrorIs(t, err, ErrTokenRequired)
	})

	t.Run("invalid_token", func(t *testing.T) {
		session, err := svc.Authenticate("not-a-jwt", "127.0.0.1")
		require.Nil(t, session)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("valid_token", func(t *testing.T) {
		token, err := util.GenerateToken("u1", time.Minute)
		require.NoError(t, err)
		session, err := svc.Authenticate(token, "127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "u1", session.UserUUID)
		assert.Equal(t, "127.0.0.1", session.ClientIP)
	})
}

func TestChatServiceHandleJoin(t *testing.T) {
	initChatTestLogger()

	t.Run("join_binds_and_acks", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		svc := NewChatService(registry, &fakeMessageServiceForChat{}, nil)
		peer := newWSTestPeer(t)

		svc.HandleJoin(context.Background(), peer.client, &Session{UserUUID: "u1"}, mustMarshal(t, JoinData{UserUuid: "u1"}))

		assert.Equal(t, "u1", peer.client.UserUUID())
		assert.True(t, registry.IsOnline("u1"))

		frame := peer.readFrame(t)
		assert.Equal(t, FrameJoinAck, frame.Type)
	})

	t.Run("identity_mismatch_rejected", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		svc := NewChatService(registry, &fakeMessageServiceForChat{}, nil)
		peer := newWSTestPeer(t)

		svc.HandleJoin(context.Background(), peer.client, &Session{UserUUID: "u1"}, mustMarshal(t, JoinData{UserUuid: "u2"}))

		assert.False(t, registry.IsOnline("u1"))
		assert.False(t, registry.IsOnline("u2"))

		frame := peer.readFrame(t)
		require.Equal(t, FrameError, frame.Type)
		var data ErrorData
		require.NoError(t, json.Unmarshal(frame.Data, &data))
		assert.Equal(t, int32(consts.CodeInvalidToken), data.Code)
	})

	t.Run("rejoin_replaces_old_connection", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		svc := NewChatService(registry, &fakeMessageServiceForChat{}, nil)
		oldPeer := newWSTestPeer(t)
		newPeer := newWSTestPeer(t)

		svc.HandleJoin(context.Background(), oldPeer.client, &Session{UserUUID: "u1"}, nil)
		oldPeer.readFrame(t) // join_ack

		svc.HandleJoin(context.Background(), newPeer.client, &Session{UserUUID: "u1"}, nil)
		newPeer.readFrame(t) // join_ack

		select {
		case <-oldPeer.client.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("旧连接未被关闭")
		}
		assert.Equal(t, 1, registry.Count())
	})
}

func TestChatServiceHandleSendMessage(t *testing.T) {
	initChatTestLogger()

	join := func(t *testing.T, svc *ChatService, peer *wsTestPeer, userUUID string) {
		t.Helper()
		svc.HandleJoin(context.Background(), peer.client, &Session{UserUUID: userUUID}, nil)
		frame := peer.readFrame(t)
		require.Equal(t, FrameJoinAck, frame.Type)
	}

	t.Run("requires_join_first", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		svc := NewChatService(registry, &fakeMessageServiceForChat{}, nil)
		peer := newWSTestPeer(t)

		svc.HandleSendMessage(context.Background(), peer.client, &Session{UserUUID: "u1"},
			mustMarshal(t, SendMessageData{RecipientUuid: "u2", Content: "hi"}))

		frame := peer.readFrame(t)
		require.Equal(t, FrameMessageError, frame.Type)
		var data MessageErrorData
		require.NoError(t, json.Unmarshal(frame.Data, &data))
		assert.Equal(t, int32(consts.CodeParamError), data.Code)
	})

	t.Run("delivery_exclusivity", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		created := time.Unix(1700000000, 0)
		svc := NewChatService(registry, &fakeMessageServiceForChat{
			sendFn: func(_ context.Context, senderUUID, recipientUUID, content string) (*model.Message, bool, error) {
				return &model.Message{
					Id:            99,
					SenderUuid:    senderUUID,
					RecipientUuid: recipientUUID,
					Content:       content,
					CreatedAt:     created,
				}, false, nil
			},
		}, nil)

		sender := newWSTestPeer(t)
		recipient := newWSTestPeer(t)
		join(t, svc, sender, "u1")
		join(t, svc, recipient, "u2")

		svc.HandleSendMessage(context.Background(), sender.client, &Session{UserUUID: "u1"},
			mustMarshal(t, SendMessageData{RecipientUuid: "u2", Content: "hello", ClientTempId: "tmp-1"}))

		// 接收方只收到 message-delivered
		deliveredFrame := recipient.readFrame(t)
		require.Equal(t, FrameMessageDelivered, deliveredFrame.Type)
		var delivered MessageDeliveredData
		require.NoError(t, json.Unmarshal(deliveredFrame.Data, &delivered))
		assert.Equal(t, int64(99), delivered.Id)
		assert.Equal(t, "u1", delivered.SenderUuid)
		assert.Equal(t, "hello", delivered.Content)
		assert.Equal(t, created.UnixMilli(), delivered.Timestamp)
		recipient.expectNoFrame(t)

		// 发送方只收到 message-sent
		sentFrame := sender.readFrame(t)
		require.Equal(t, FrameMessageSent, sentFrame.Type)
		var sent MessageSentData
		require.NoError(t, json.Unmarshal(sentFrame.Data, &sent))
		assert.Equal(t, int64(99), sent.Id)
		assert.Equal(t, "tmp-1", sent.ClientTempId)
		sender.expectNoFrame(t)
	})

	t.Run("offline_recipient_still_acks_sender", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		svc := NewChatService(registry, &fakeMessageServiceForChat{}, nil)

		sender := newWSTestPeer(t)
		join(t, svc, sender, "u1")

		svc.HandleSendMessage(context.Background(), sender.client, &Session{UserUUID: "u1"},
			mustMarshal(t, SendMessageData{RecipientUuid: "offline", Content: "hi", ClientTempId: "tmp-2"}))

		frame := sender.readFrame(t)
		assert.Equal(t, FrameMessageSent, frame.Type)
	})

	t.Run("send_failure_returns_message_error", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		svc := NewChatService(registry, &fakeMessageServiceForChat{
			sendFn: func(_ context.Context, _, _, _ string) (*model.Message, bool, error) {
				return nil, false, errs.New(consts.CodeNotConnected)
			},
		}, nil)

		sender := newWSTestPeer(t)
		join(t, svc, sender, "u1")

		svc.HandleSendMessage(context.Background(), sender.client, &Session{UserUUID: "u1"},
			mustMarshal(t, SendMessageData{RecipientUuid: "u2", Content: "hi", ClientTempId: "tmp-3"}))

		frame := sender.readFrame(t)
		require.Equal(t, FrameMessageError, frame.Type)
		var data MessageErrorData
		require.NoError(t, json.Unmarshal(frame.Data, &data))
		assert.Equal(t, int32(consts.CodeNotConnected), data.Code)
		assert.Equal(t, "tmp-3", data.ClientTempId)
	})

	t.Run("duplicate_temp_id_replays_ack", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		sendCalls := 0
		svc := NewChatService(registry, &fakeMessageServiceForChat{
			sendFn: func(_ context.Context, senderUUID, recipientUUID, content string) (*model.Message, bool, error) {
				sendCalls++
				return &model.Message{
					Id:            7,
					SenderUuid:    senderUUID,
					RecipientUuid: recipientUUID,
					Content:       content,
					CreatedAt:     time.Now(),
				}, false, nil
			},
		}, nil)

		sender := newWSTestPeer(t)
		join(t, svc, sender, "u1")

		payload := mustMarshal(t, SendMessageData{RecipientUuid: "u2", Content: "hi", ClientTempId: "tmp-4"})
		svc.HandleSendMessage(context.Background(), sender.client, &Session{UserUUID: "u1"}, payload)
		first := sender.readFrame(t)
		require.Equal(t, FrameMessageSent, first.Type)

		// 断线重发同一 client_temp_id：直接重放回执，不触发第二次写入
		svc.HandleSendMessage(context.Background(), sender.client, &Session{UserUUID: "u1"}, payload)
		second := sender.readFrame(t)
		require.Equal(t, FrameMessageSent, second.Type)
		var sent MessageSentData
		require.NoError(t, json.Unmarshal(second.Data, &sent))
		assert.Equal(t, int64(7), sent.Id)
		assert.Equal(t, 1, sendCalls)
	})

	t.Run("dedup_window_hit_skips_redelivery", func(t *testing.T) {
		registry := manager.NewSessionRegistry()
		// 模拟 HTTP 链路已写入同一条消息：存储返回已有记录并标记重复
		svc := NewChatService(registry, &fakeMessageServiceForChat{
			sendFn: func(_ context.Context, senderUUID, recipientUUID, content string) (*model.Message, bool, error) {
				return &model.Message{
					Id:            42,
					SenderUuid:    senderUUID,
					RecipientUuid: recipientUUID,
					Content:       content,
					CreatedAt:     time.Now(),
				}, true, nil
			},
		}, nil)

		sender := newWSTestPeer(t)
		recipient := newWSTestPeer(t)
		join(t, svc, sender, "u1")
		join(t, svc, recipient, "u2")

		svc.HandleSendMessage(context.Background(), sender.client, &Session{UserUUID: "u1"},
			mustMarshal(t, SendMessageData{RecipientUuid: "u2", Content: "hi", ClientTempId: "tmp-5"}))

		// 发送方仍拿到已有消息 ID 的回执
		frame := sender.readFrame(t)
		require.Equal(t, FrameMessageSent, frame.Type)
		var sent MessageSentData
		require.NoError(t, json.Unmarshal(frame.Data, &sent))
		assert.Equal(t, int64(42), sent.Id)

		// 接收方不会被二次投递
		recipient.expectNoFrame(t)
	})
}

func TestChatServiceEnvelope(t *testing.T) {
	initChatTestLogger()
	svc := NewChatService(manager.NewSessionRegistry(), &fakeMessageServiceForChat{}, nil)

	t.Run("parse_rejects_missing_type", func(t *testing.T) {
		_, err := svc.ParseEnvelope([]byte(`{"data":{}}`))
		require.Error(t, err)

		_, err = svc.ParseEnvelope([]byte(`not json`))
		require.Error(t, err)
	})

	t.Run("marshal_omits_nil_data", func(t *testing.T) {
		raw, err := svc.MarshalEnvelope(FrameHeartbeatAck, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"heartbeat_ack"}`, string(raw))
	})

	t.Run("message_id_serialized_as_string", func(t *testing.T) {
		raw, err := svc.MarshalEnvelope(FrameMessageSent, MessageSentData{Id: 123456789012345678, ClientTempId: "tmp"})
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"id":"123456789012345678"`)
	})
}
