package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"DevTinder/apps/server/internal/service"
	"DevTinder/consts"
	"DevTinder/model"
	"DevTinder/pkg/errs"
	"DevTinder/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConnectionHTTPService struct {
	sendRequestFn func(context.Context, string, string) (*model.Connection, error)
	acceptFn      func(context.Context, string, string) (*model.Connection, error)
	rejectFn      func(context.Context, string, string) (*model.Connection, error)
	removeFn      func(context.Context, string, string) error
	listRecvFn    func(context.Context, string, int, int) ([]*service.ConnectionEntry, int64, error)
	listSentFn    func(context.Context, string, int, int) ([]*service.ConnectionEntry, int64, error)
	listConnsFn   func(context.Context, string, int, int) ([]*service.ConnectionEntry, int64, error)
	isConnectedFn func(context.Context, string, string) (bool, error)
}

func (f *fakeConnectionHTTPService) SendRequest(ctx context.Context, requesterUUID, recipientUUID string) (*model.Connection, error) {
	if f.sendRequestFn == nil {
		return &model.Connection{RequesterUuid: requesterUUID, RecipientUuid: recipientUUID, Status: model.ConnectionStatusPending}, nil
	}
	return f.sendRequestFn(ctx, requesterUUID, recipientUUID)
}

func (f *fakeConnectionHTTPService) Accept(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error) {
	if f.acceptFn == nil {
		return &model.Connection{RequesterUuid: requesterUUID, RecipientUuid: recipientUUID, Status: model.ConnectionStatusAccepted}, nil
	}
	return f.acceptFn(ctx, recipientUUID, requesterUUID)
}

func (f *fakeConnectionHTTPService) Reject(ctx context.Context, recipientUUID, requesterUUID string) (*model.Connection, error) {
	if f.rejectFn == nil {
		return &model.Connection{RequesterUuid: requesterUUID, RecipientUuid: recipientUUID, Status: model.ConnectionStatusRejected}, nil
	}
	return f.rejectFn(ctx, recipientUUID, requesterUUID)
}

func (f *fakeConnectionHTTPService) Remove(ctx context.Context, userUUID, peerUUID string) error {
	if f.removeFn == nil {
		return nil
	}
	return f.removeFn(ctx, userUUID, peerUUID)
}

func (f *fakeConnectionHTTPService) ListReceivedRequests(ctx context.Context, userUUID string, page, pageSize int) ([]*service.ConnectionEntry, int64, error) {
	if f.listRecvFn == nil {
		return nil, 0, nil
	}
	return f.listRecvFn(ctx, userUUID, page, pageSize)
}

func (f *fakeConnectionHTTPService) ListSentRequests(ctx context.Context, userUUID string, page, pageSize int) ([]*service.ConnectionEntry, int64, error) {
	if f.listSentFn == nil {
		return nil, 0, nil
	}
	return f.listSentFn(ctx, userUUID, page, pageSize)
}

func (f *fakeConnectionHTTPService) ListConnections(ctx context.Context, userUUID string, page, pageSize int) ([]*service.ConnectionEntry, int64, error) {
	if f.listConnsFn == nil {
		return nil, 0, nil
	}
	return f.listConnsFn(ctx, userUUID, page, pageSize)
}

func (f *fakeConnectionHTTPService) IsConnected(ctx context.Context, userUUID, peerUUID string) (bool, error) {
	if f.isConnectedFn == nil {
		return false, nil
	}
	return f.isConnectedFn(ctx, userUUID, peerUUID)
}

type resultBody struct {
	Code int32           `json:"code"`
	Data json.RawMessage `json:"data"`
}

var handlerLoggerOnce sync.Once

func initHandlerTestLogger() {
	handlerLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
		gin.SetMode(gin.TestMode)
	})
}

func decodeResultBody(t *testing.T, w *httptest.ResponseRecorder) resultBody {
	t.Helper()
	var body resultBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// newAuthedTestContext 构造带认证身份的测试上下文。
func newAuthedTestContext(t *testing.T, w *httptest.ResponseRecorder, method, target, userUUID string) *gin.Context {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set("user_uuid", userUUID)
	return c
}

func TestConnectionHandlerSendRequest(t *testing.T) {
	initHandlerTestLogger()

	tests := []struct {
		name       string
		pathValue  string
		setupSvc   func(*fakeConnectionHTTPService, *bool)
		wantCode   int32
		wantCalled bool
	}{
		{
			name:       "missing_path_param",
			pathValue:  "",
			wantCode:   consts.CodeParamError,
			wantCalled: false,
		},
		{
			name:      "success",
			pathValue: "u2",
			setupSvc: func(svc *fakeConnectionHTTPService, called *bool) {
				svc.sendRequestFn = func(_ context.Context, requesterUUID, recipientUUID string) (*model.Connection, error) {
					*called = true
					require.Equal(t, "u1", requesterUUID)
					require.Equal(t, "u2", recipientUUID)
					return &model.Connection{RequesterUuid: "u1", RecipientUuid: "u2", Status: model.ConnectionStatusPending}, nil
				}
			},
			wantCode:   consts.CodeSuccess,
			wantCalled: true,
		},
		{
			name:      "business_error_passthrough",
			pathValue: "u2",
			setupSvc: func(svc *fakeConnectionHTTPService, called *bool) {
				svc.sendRequestFn = func(_ context.Context, _, _ string) (*model.Connection, error) {
					*called = true
					return nil, errs.New(consts.CodeAlreadyConnected)
				}
			},
			wantCode:   consts.CodeAlreadyConnected,
			wantCalled: true,
		},
		{
			name:      "internal_error",
			pathValue: "u2",
			setupSvc: func(svc *fakeConnectionHTTPService, called *bool) {
				svc.sendRequestFn = func(_ context.Context, _, _ string) (*model.Connection, error) {
					*called = true
					return nil, errors.New("internal")
				}
			},
			wantCode:   consts.CodeInternalError,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &fakeConnectionHTTPService{}
			if tt.setupSvc != nil {
				tt.setupSvc(svc, &called)
			}
			h := NewConnectionHandler(svc)

			w := httptest.NewRecorder()
			c := newAuthedTestContext(t, w, http.MethodPost, "/api/v1/connections/request/"+tt.pathValue, "u1")
			if tt.pathValue != "" {
				c.Params = gin.Params{{Key: "userId", Value: tt.pathValue}}
			}

			h.SendRequest(c)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantCode, decodeResultBody(t, w).Code)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}

func TestConnectionHandlerReview(t *testing.T) {
	initHandlerTestLogger()

	t.Run("accept_passes_identities", func(t *testing.T) {
		svc := &fakeConnectionHTTPService{
			acceptFn: func(_ context.Context, recipientUUID, requesterUUID string) (*model.Connection, error) {
				// 认证用户是接收方，路径参数是申请方
				require.Equal(t, "u1", recipientUUID)
				require.Equal(t, "u2", requesterUUID)
				return &model.Connection{RequesterUuid: "u2", RecipientUuid: "u1", Status: model.ConnectionStatusAccepted}, nil
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodPost, "/api/v1/connections/accept/u2", "u1")
		c.Params = gin.Params{{Key: "userId", Value: "u2"}}

		h.Accept(c)

		body := decodeResultBody(t, w)
		assert.Equal(t, int32(consts.CodeSuccess), body.Code)
		assert.Contains(t, string(body.Data), `"peer_uuid":"u2"`)
	})

	t.Run("reject_no_such_request", func(t *testing.T) {
		svc := &fakeConnectionHTTPService{
			rejectFn: func(_ context.Context, _, _ string) (*model.Connection, error) {
				return nil, errs.New(consts.CodeNoSuchRequest)
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodPost, "/api/v1/connections/reject/u2", "u1")
		c.Params = gin.Params{{Key: "userId", Value: "u2"}}

		h.Reject(c)

		assert.Equal(t, int32(consts.CodeNoSuchRequest), decodeResultBody(t, w).Code)
	})
}

func TestConnectionHandlerRemove(t *testing.T) {
	initHandlerTestLogger()

	t.Run("success", func(t *testing.T) {
		removed := false
		svc := &fakeConnectionHTTPService{
			removeFn: func(_ context.Context, userUUID, peerUUID string) error {
				removed = true
				require.Equal(t, "u1", userUUID)
				require.Equal(t, "u2", peerUUID)
				return nil
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodDelete, "/api/v1/connections/u2", "u1")
		c.Params = gin.Params{{Key: "userId", Value: "u2"}}

		h.Remove(c)

		assert.Equal(t, int32(consts.CodeSuccess), decodeResultBody(t, w).Code)
		assert.True(t, removed)
	})

	t.Run("not_connected", func(t *testing.T) {
		svc := &fakeConnectionHTTPService{
			removeFn: func(_ context.Context, _, _ string) error {
				return errs.New(consts.CodeNotConnected)
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodDelete, "/api/v1/connections/u2", "u1")
		c.Params = gin.Params{{Key: "userId", Value: "u2"}}

		h.Remove(c)

		assert.Equal(t, int32(consts.CodeNotConnected), decodeResultBody(t, w).Code)
	})
}

func TestConnectionHandlerLists(t *testing.T) {
	initHandlerTestLogger()

	t.Run("bind_query_failed", func(t *testing.T) {
		h := NewConnectionHandler(&fakeConnectionHTTPService{})

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodGet, "/api/v1/connections?page=abc", "u1")

		h.ListConnections(c)

		assert.Equal(t, int32(consts.CodeParamError), decodeResultBody(t, w).Code)
	})

	t.Run("default_pagination", func(t *testing.T) {
		svc := &fakeConnectionHTTPService{
			listRecvFn: func(_ context.Context, userUUID string, page, pageSize int) ([]*service.ConnectionEntry, int64, error) {
				require.Equal(t, "u1", userUUID)
				require.Equal(t, 1, page)
				require.Equal(t, 20, pageSize)
				return []*service.ConnectionEntry{
					{PeerUuid: "u2", Status: model.ConnectionStatusPending},
				}, 1, nil
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodGet, "/api/v1/connections/requests", "u1")

		h.ListReceivedRequests(c)

		body := decodeResultBody(t, w)
		assert.Equal(t, int32(consts.CodeSuccess), body.Code)
		assert.Contains(t, string(body.Data), `"peer_uuid":"u2"`)
	})

	t.Run("explicit_pagination_forwarded", func(t *testing.T) {
		svc := &fakeConnectionHTTPService{
			listSentFn: func(_ context.Context, _ string, page, pageSize int) ([]*service.ConnectionEntry, int64, error) {
				require.Equal(t, 2, page)
				require.Equal(t, 5, pageSize)
				return nil, 0, nil
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodGet, "/api/v1/connections/requests/sent?page=2&limit=5", "u1")

		h.ListSentRequests(c)

		assert.Equal(t, int32(consts.CodeSuccess), decodeResultBody(t, w).Code)
	})

	t.Run("internal_error", func(t *testing.T) {
		svc := &fakeConnectionHTTPService{
			listConnsFn: func(_ context.Context, _ string, _, _ int) ([]*service.ConnectionEntry, int64, error) {
				return nil, 0, errors.New("db failed")
			},
		}
		h := NewConnectionHandler(svc)

		w := httptest.NewRecorder()
		c := newAuthedTestContext(t, w, http.MethodGet, "/api/v1/connections", "u1")

		h.ListConnections(c)

		assert.Equal(t, int32(consts.CodeInternalError), decodeResultBody(t, w).Code)
	})
}
