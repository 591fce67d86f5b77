package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"DevTinder/consts"
	"DevTinder/model"
	"DevTinder/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageRepoForService struct {
	appendFn             func(context.Context, *model.Message) (*model.Message, bool, error)
	listByConversationFn func(context.Context, string, int, int) ([]*model.Message, int64, error)
	unreadCountFn        func(context.Context, string) (int64, error)
	markReadFn           func(context.Context, string, string) (int64, error)
}

func (f *fakeMessageRepoForService) Append(ctx context.Context, msg *model.Message) (*model.Message, bool, error) {
	if f.appendFn == nil {
		return msg, false, nil
	}
	return f.appendFn(ctx, msg)
}

func (f *fakeMessageRepoForService) ListByConversation(ctx context.Context, conversationKey string, page, pageSize int) ([]*model.Message, int64, error) {
	if f.listByConversationFn == nil {
		return nil, 0, nil
	}
	return f.listByConversationFn(ctx, conversationKey, page, pageSize)
}

func (f *fakeMessageRepoForService) UnreadCount(ctx context.Context, userUUID string) (int64, error) {
	if f.unreadCountFn == nil {
		return 0, nil
	}
	return f.unreadCountFn(ctx, userUUID)
}

func (f *fakeMessageRepoForService) MarkConversationRead(ctx context.Context, userUUID, peerUUID string) (int64, error) {
	if f.markReadFn == nil {
		return 0, nil
	}
	return f.markReadFn(ctx, userUUID, peerUUID)
}

func connectedRepo() *fakeConnRepoForService {
	return &fakeConnRepoForService{
		isConnectedFn: func(_ context.Context, _, _ string) (bool, error) {
			return true, nil
		},
	}
}

func TestMessageServiceSend(t *testing.T) {
	initServiceTestLogger()

	t.Run("cannot_message_self", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{}, connectedRepo())
		msg, _, err := svc.Send(context.Background(), "u1", "u1", "hi")
		require.Nil(t, msg)
		requireBizCode(t, err, consts.CodeSelfConnection)
	})

	t.Run("empty_content_after_trim", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{}, connectedRepo())
		msg, _, err := svc.Send(context.Background(), "u1", "u2", "   \n\t ")
		require.Nil(t, msg)
		requireBizCode(t, err, consts.CodeEmptyContent)
	})

	t.Run("no_message_without_connection", func(t *testing.T) {
		appendCalled := false
		svc := NewMessageService(&fakeMessageRepoForService{
			appendFn: func(_ context.Context, msg *model.Message) (*model.Message, bool, error) {
				appendCalled = true
				return msg, false, nil
			},
		}, &fakeConnRepoForService{
			isConnectedFn: func(_ context.Context, _, _ string) (bool, error) {
				return false, nil
			},
		})
		msg, _, err := svc.Send(context.Background(), "u1", "u2", "hi")
		require.Nil(t, msg)
		requireBizCode(t, err, consts.CodeNotConnected)
		assert.False(t, appendCalled)
	})

	t.Run("send_success_trims_and_keys_conversation", func(t *testing.T) {
		var appended *model.Message
		svc := NewMessageService(&fakeMessageRepoForService{
			appendFn: func(_ context.Context, msg *model.Message) (*model.Message, bool, error) {
				appended = msg
				msg.Id = 42
				return msg, false, nil
			},
		}, connectedRepo())

		msg, duplicated, err := svc.Send(context.Background(), "u1", "u2", "  hello  ")
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.False(t, duplicated)
		assert.Equal(t, int64(42), msg.Id)
		require.NotNil(t, appended)
		assert.Equal(t, "hello", appended.Content)
		// 会话键与消息方向无关
		assert.Equal(t, util.ConversationKey("u2", "u1"), appended.ConversationKey)
	})

	t.Run("duplicate_window_returns_existing", func(t *testing.T) {
		existing := &model.Message{Id: 41, SenderUuid: "u1", RecipientUuid: "u2", Content: "hi"}
		svc := NewMessageService(&fakeMessageRepoForService{
			appendFn: func(_ context.Context, _ *model.Message) (*model.Message, bool, error) {
				return existing, true, nil
			},
		}, connectedRepo())

		msg, duplicated, err := svc.Send(context.Background(), "u1", "u2", "hi")
		require.NoError(t, err)
		assert.True(t, duplicated)
		assert.Equal(t, int64(41), msg.Id)
	})

	t.Run("append_error", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			appendFn: func(_ context.Context, _ *model.Message) (*model.Message, bool, error) {
				return nil, false, errors.New("db failed")
			},
		}, connectedRepo())
		_, _, err := svc.Send(context.Background(), "u1", "u2", "hi")
		requireBizCode(t, err, consts.CodeMessageSendFail)
	})

	t.Run("connection_check_error", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{}, &fakeConnRepoForService{
			isConnectedFn: func(_ context.Context, _, _ string) (bool, error) {
				return false, errors.New("redis failed")
			},
		})
		_, _, err := svc.Send(context.Background(), "u1", "u2", "hi")
		requireBizCode(t, err, consts.CodeInternalError)
	})
}

func TestMessageServiceHistory(t *testing.T) {
	initServiceTestLogger()

	now := time.Unix(1700000000, 0)

	t.Run("defaults_and_total_pages", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			listByConversationFn: func(_ context.Context, conversationKey string, page, pageSize int) ([]*model.Message, int64, error) {
				assert.Equal(t, util.ConversationKey("u1", "u2"), conversationKey)
				assert.Equal(t, 1, page)
				assert.Equal(t, 50, pageSize)
				return []*model.Message{
					{Id: 1, SenderUuid: "u1", RecipientUuid: "u2", Content: "a", CreatedAt: now},
					{Id: 2, SenderUuid: "u2", RecipientUuid: "u1", Content: "b", CreatedAt: now.Add(time.Second)},
				}, 101, nil
			},
		}, connectedRepo())

		page, err := svc.History(context.Background(), "u1", "u2", 0, 0)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		assert.Equal(t, int64(101), page.Total)
		assert.Equal(t, int64(3), page.TotalPages)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 50, page.PageSize)
	})

	t.Run("exact_page_boundary", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			listByConversationFn: func(_ context.Context, _ string, _, _ int) ([]*model.Message, int64, error) {
				return nil, 100, nil
			},
		}, connectedRepo())

		page, err := svc.History(context.Background(), "u1", "u2", 3, 50)
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.TotalPages)
	})

	t.Run("repo_error", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			listByConversationFn: func(_ context.Context, _ string, _, _ int) ([]*model.Message, int64, error) {
				return nil, 0, errors.New("db failed")
			},
		}, connectedRepo())
		_, err := svc.History(context.Background(), "u1", "u2", 1, 50)
		requireBizCode(t, err, consts.CodeInternalError)
	})
}

func TestMessageServiceUnreadAndMarkRead(t *testing.T) {
	initServiceTestLogger()

	t.Run("unread_count", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			unreadCountFn: func(_ context.Context, userUUID string) (int64, error) {
				assert.Equal(t, "u1", userUUID)
				return 12, nil
			},
		}, connectedRepo())
		count, err := svc.UnreadCount(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(12), count)
	})

	t.Run("mark_read_reports_affected", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			markReadFn: func(_ context.Context, userUUID, peerUUID string) (int64, error) {
				assert.Equal(t, "u1", userUUID)
				assert.Equal(t, "u2", peerUUID)
				return 3, nil
			},
		}, connectedRepo())
		affected, err := svc.MarkRead(context.Background(), "u1", "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(3), affected)
	})

	t.Run("errors_map_to_internal", func(t *testing.T) {
		svc := NewMessageService(&fakeMessageRepoForService{
			unreadCountFn: func(_ context.Context, _ string) (int64, error) {
				return 0, errors.New("redis failed")
			},
			markReadFn: func(_ context.Context, _, _ string) (int64, error) {
				return 0, errors.New("db failed")
			},
		}, connectedRepo())

		_, err := svc.UnreadCount(context.Background(), "u1")
		requireBizCode(t, err, consts.CodeInternalError)

		_, err = svc.MarkRead(context.Background(), "u1", "u2")
		requireBizCode(t, err, consts.CodeInternalError)
	})
}
