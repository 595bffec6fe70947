package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
	"github.com/shaiso/Taskflow/internal/mq"
	"github.com/shaiso/Taskflow/internal/steps"
)

type memStore struct {
	mu    sync.Mutex
	doc   domain.ManagerDocument
	saves int
	err   error
}

func (s *memStore) SaveDocument(_ context.Context, doc domain.ManagerDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.doc = doc
	s.saves++
	return nil
}

func (s *memStore) LoadDocument(context.Context) (domain.ManagerDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*mq.Message
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, _ mq.Exchange, _ mq.RoutingKey, msg *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	manager *engine.Manager
	store   *memStore
	pub     *capturePublisher
	mux     *http.ServeMux
}

func newTestServer(t *testing.T, withPublisher bool) *testServer {
	t.Helper()
	logger := testLogger()
	ts := &testServer{
		manager: engine.NewManager(steps.DefaultRegistry(),
			engine.WithManagerLogger(logger),
			engine.WithFlowRegistry(steps.DefaultFlowRegistry()),
			engine.WithFlowOptions(engine.WithLogger(logger)),
		),
		store: &memStore{},
		mux:   http.NewServeMux(),
	}
	cfg := Config{Manager: ts.manager, Store: ts.store, Logger: logger}
	if withPublisher {
		ts.pub = &capturePublisher{}
		cfg.Publisher = ts.pub
	}
	NewHandler(cfg).RegisterRoutes(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func greetingDoc() domain.FlowDocument {
	return domain.FlowDocument{
		Tasks: []domain.TaskDocument{
			{TaskID: "src", TaskType: steps.TypeConstant, Params: map[string]any{"value": "hello"}},
			{TaskID: "echo", TaskType: steps.TypeEcho},
		},
		Connections: []string{"src.out->echo.in"},
	}
}

func TestListTaskTypes(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/api/v1/task-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	types := decodeData[TaskTypesResponse](t, rec)
	assert.Contains(t, types.Types, steps.TypeConstant)
	assert.Contains(t, types.Types, steps.TypeHTTP)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestFlowTypes(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/api/v1/flow-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decodeData[FlowTypesResponse](t, rec)
	assert.Equal(t, []string{steps.FlowTypeFileAnalysis, steps.FlowTypeGreeting}, types.Types)

	rec = ts.do(t, http.MethodPost, "/api/v1/flow-types/greeting/flows", CreateFromTypeRequest{FlowID: "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decodeData[domain.FlowDocument](t, rec)
	assert.Equal(t, "hi", doc.FlowID)
	assert.Equal(t, []string{"source.out->echo.in"}, doc.Connections)
	assert.Equal(t, 1, ts.store.saves)

	rec = ts.do(t, http.MethodPost, "/api/v1/flow-types/greeting/flows", CreateFromTypeRequest{FlowID: "hi"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Без тела ID генерируется
	rec = ts.do(t, http.MethodPost, "/api/v1/flow-types/greeting/flows", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decodeData[domain.FlowDocument](t, rec).FlowID)
	assert.Equal(t, 2, ts.manager.Len())

	rec = ts.do(t, http.MethodPost, "/api/v1/flow-types/missing/flows", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/flow-types/greeting/flows", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutFlow_CreateAndReplace(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decodeData[domain.FlowDocument](t, rec)
	assert.Equal(t, "greet", doc.FlowID)
	assert.Equal(t, []string{"src.out->echo.in"}, doc.Connections)
	assert.True(t, ts.manager.HasFlow("greet"))
	assert.Equal(t, 1, ts.store.saves)

	rec = ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.manager.Len())
	assert.Equal(t, 2, ts.store.saves)
	assert.Equal(t, 1, ts.store.doc.FlowCount)
}

func TestPutFlow_Errors(t *testing.T) {
	ts := newTestServer(t, false)

	t.Run("malformed body", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/api/v1/flows/x", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("id mismatch", func(t *testing.T) {
		doc := greetingDoc()
		doc.FlowID = "other"
		rec := ts.do(t, http.MethodPut, "/api/v1/flows/x", doc)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown task type", func(t *testing.T) {
		doc := domain.FlowDocument{Tasks: []domain.TaskDocument{{TaskID: "a", TaskType: "nope"}}}
		rec := ts.do(t, http.MethodPut, "/api/v1/flows/x", doc)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		detail := decodeError(t, rec)
		assert.Equal(t, ErrCodeInvalidFlow, detail.Code)
		assert.Equal(t, "a", detail.TaskID)
		assert.Equal(t, "taskType", detail.Field)
	})

	t.Run("task id with separator", func(t *testing.T) {
		doc := domain.FlowDocument{Tasks: []domain.TaskDocument{{TaskID: "file.reader", TaskType: steps.TypeEcho}}}
		rec := ts.do(t, http.MethodPut, "/api/v1/flows/x", doc)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "taskId", decodeError(t, rec).Field)
	})

	assert.False(t, ts.manager.HasFlow("x"))
	assert.Zero(t, ts.store.saves)
}

func TestPutFlow_StoreFailure(t *testing.T) {
	ts := newTestServer(t, false)
	ts.store.err = errors.New("disk full")

	rec := ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAndListFlows(t *testing.T) {
	ts := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/b", greetingDoc()).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/a", greetingDoc()).Code)

	rec := ts.do(t, http.MethodGet, "/api/v1/flows", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Data  []FlowSummary `json:"data"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, []FlowSummary{
		{FlowID: "a", Tasks: 2, Connections: 1},
		{FlowID: "b", Tasks: 2, Connections: 1},
	}, list.Data)

	rec = ts.do(t, http.MethodGet, "/api/v1/flows/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", decodeData[domain.FlowDocument](t, rec).FlowID)

	rec = ts.do(t, http.MethodGet, "/api/v1/flows/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFlow(t *testing.T) {
	ts := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

	rec := ts.do(t, http.MethodDelete, "/api/v1/flows/greet", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, ts.manager.HasFlow("greet"))
	assert.Equal(t, 0, ts.store.doc.FlowCount)

	rec = ts.do(t, http.MethodDelete, "/api/v1/flows/greet", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFlowOrder(t *testing.T) {
	ts := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

	rec := ts.do(t, http.MethodGet, "/api/v1/flows/greet/order", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	order := decodeData[OrderResponse](t, rec)
	assert.Equal(t, []string{"src", "echo"}, order.Order)
	assert.Equal(t, [][]string{{"src"}, {"echo"}}, order.Layers)
}

func TestGetFlowOrder_Cycle(t *testing.T) {
	ts := newTestServer(t, false)
	doc := domain.FlowDocument{
		Tasks: []domain.TaskDocument{
			{TaskID: "a", TaskType: steps.TypeEcho},
			{TaskID: "b", TaskType: steps.TypeEcho},
		},
		Connections: []string{"a.out->b.in", "b.out->a.in"},
	}
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/loop", doc).Code)

	rec := ts.do(t, http.MethodGet, "/api/v1/flows/loop/order", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, ErrCodeInvalidFlow, decodeError(t, rec).Code)
}

func TestExecuteFlow_Sync(t *testing.T) {
	ts := newTestServer(t, false)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

	rec := ts.do(t, http.MethodPost, "/api/v1/flows/greet/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decodeData[ExecuteResponse](t, rec)
	assert.Equal(t, "greet", res.FlowID)
	assert.Equal(t, domain.FlowStateSuccess, res.State)
	assert.Equal(t, "hello", res.Outputs["echo"]["out"])
	assert.Equal(t, "hello", res.Outputs["src"]["out"])
}

func TestExecuteFlow_NotFound(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/flows/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteFlow_Async(t *testing.T) {
	t.Run("published", func(t *testing.T) {
		ts := newTestServer(t, true)
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

		rec := ts.do(t, http.MethodPost, "/api/v1/flows/greet/execute?async=true", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		res := decodeData[ExecuteAcceptedResponse](t, rec)
		require.Len(t, ts.pub.msgs, 1)
		assert.Equal(t, ts.pub.msgs[0].ID, res.RequestID)
		assert.Equal(t, mq.MessageTypeFlowExecute, ts.pub.msgs[0].Type)
	})

	t.Run("no publisher", func(t *testing.T) {
		ts := newTestServer(t, false)
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

		rec := ts.do(t, http.MethodPost, "/api/v1/flows/greet/execute?async=true", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("publish error", func(t *testing.T) {
		ts := newTestServer(t, true)
		ts.pub.err = errors.New("broker down")
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

		rec := ts.do(t, http.MethodPost, "/api/v1/flows/greet/execute?async=1", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("bad flag", func(t *testing.T) {
		ts := newTestServer(t, true)
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPut, "/api/v1/flows/greet", greetingDoc()).Code)

		rec := ts.do(t, http.MethodPost, "/api/v1/flows/greet/execute?async=maybe", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Code)
}

func TestRequestID_Preserved(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(HeaderRequestID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
}

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("first"), mw("second"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls = append(calls, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, calls)
}
