package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hostpilotpro/captain-cortex/internal/cache"
	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/middleware/validation"
	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) ProcessQuestion(ctx context.Context, req cortex.Request) (*cortex.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*cortex.Response)
	return resp, args.Error(1)
}

func (m *mockEngine) InvalidateCache(pattern string) int {
	return m.Called(pattern).Int(0)
}

func (m *mockEngine) InvalidateOrganization(organizationID string) int {
	return m.Called(organizationID).Int(0)
}

func (m *mockEngine) CacheStats() cache.Stats {
	return m.Called().Get(0).(cache.Stats)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, req cortex.Request, resp *cortex.Response) (string, error) {
	args := m.Called(ctx, req, resp)
	return args.String(0), args.Error(1)
}

func (m *mockRecorder) List(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error) {
	args := m.Called(ctx, userID, limit)
	records, _ := args.Get(0).([]models.QueryRecord)
	return records, args.Error(1)
}

func sampleAnswer(req cortex.Request) *cortex.Response {
	return &cortex.Response{
		AnswerResult: cortex.AnswerResult{
			Answer:     "Villa Samui has 2 pending tasks.",
			Sources:    []cortex.Source{{Route: "/api/tasks", Records: 2}},
			Latency:    15,
			Intent:     cortex.IntentTask,
			Confidence: 0.5,
		},
		Question:       req.Question,
		OrganizationID: req.OrganizationID,
	}
}

func newTestApp(engine Engine, recorder Recorder) *fiber.App {
	app := fiber.New()
	app.Use(validation.Middleware(validation.Config{MaxQuestionLength: 200}))
	NewCortexHandler(engine, recorder, Config{MaxQuestionLength: 200, HistoryLimit: 20}).Register(app.Group("/api/v1"))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAsk(t *testing.T) {
	engine := &mockEngine{}
	recorder := &mockRecorder{}
	req := cortex.Request{Question: "pending tasks at Villa Samui", OrganizationID: "org1", UserID: "u1"}
	answer := sampleAnswer(req)

	engine.On("ProcessQuestion", mock.Anything, req).Return(answer, nil).Once()
	recorder.On("Record", mock.Anything, req, answer).Return("q-1", nil).Once()

	status, body := doJSON(t, newTestApp(engine, recorder), "POST", "/api/v1/cortex/ask",
		`{"question":" pending tasks at Villa Samui ","organizationId":"org1","userId":"u1"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "q-1", body["id"])
	assert.Equal(t, answer.Answer, body["answer"])
	assert.Equal(t, "task_query", body["intent"])
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, "org1", body["organizationId"])
	assert.Len(t, body["sources"], 1)
	engine.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestAsk_RecorderFailureStillAnswers(t *testing.T) {
	engine := &mockEngine{}
	recorder := &mockRecorder{}
	req := cortex.Request{Question: "pending tasks", OrganizationID: "org1"}

	engine.On("ProcessQuestion", mock.Anything, req).Return(sampleAnswer(req), nil)
	recorder.On("Record", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("database is locked"))

	status, body := doJSON(t, newTestApp(engine, recorder), "POST", "/api/v1/cortex/ask",
		`{"question":"pending tasks","organizationId":"org1"}`)

	assert.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, body, "id")
	assert.NotEmpty(t, body["answer"])
}

func TestAsk_EngineError(t *testing.T) {
	engine := &mockEngine{}
	engine.On("ProcessQuestion", mock.Anything, mock.Anything).Return(nil, errors.New("grounding unavailable"))

	status, body := doJSON(t, newTestApp(engine, nil), "POST", "/api/v1/cortex/ask",
		`{"question":"pending tasks","organizationId":"org1"}`)

	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Failed to process question", body["error"])
}

func TestAsk_WithoutMiddlewareValidatesBody(t *testing.T) {
	engine := &mockEngine{}
	app := fiber.New()
	NewCortexHandler(engine, nil, Config{MaxQuestionLength: 200}).Register(app)

	status, body := doJSON(t, app, "POST", "/cortex/ask", `{"question":"pending tasks"}`)

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, validation.ErrOrganizationRequired.Error(), body["error"])
	engine.AssertNotCalled(t, "ProcessQuestion", mock.Anything, mock.Anything)
}

func TestCacheStats(t *testing.T) {
	engine := &mockEngine{}
	engine.On("CacheStats").Return(cache.Stats{Total: 3, Active: 2, Expired: 1, TTL: 300000})

	status, body := doJSON(t, newTestApp(engine, nil), "GET", "/api/v1/cortex/cache/stats", "")

	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 300000, body["ttl"])
}

func TestInvalidateCache(t *testing.T) {
	tests := []struct {
		name   string
		target string
		setup  func(e *mockEngine)
	}{
		{"by organization", "/api/v1/cortex/cache?organizationId=org1", func(e *mockEngine) {
			e.On("InvalidateOrganization", "org1").Return(4).Once()
		}},
		{"by pattern", "/api/v1/cortex/cache?pattern=villa", func(e *mockEngine) {
			e.On("InvalidateCache", "villa").Return(4).Once()
		}},
		{"everything", "/api/v1/cortex/cache", func(e *mockEngine) {
			e.On("InvalidateCache", "").Return(4).Once()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mockEngine{}
			tt.setup(engine)

			status, body := doJSON(t, newTestApp(engine, nil), "DELETE", tt.target, "")

			assert.Equal(t, fiber.StatusOK, status)
			assert.EqualValues(t, 4, body["removed"])
			engine.AssertExpectations(t)
		})
	}
}

func TestHistory(t *testing.T) {
	engine := &mockEngine{}
	recorder := &mockRecorder{}
	recorder.On("List", mock.Anything, "u1", 5).
		Return([]models.QueryRecord{{ID: "q-1", QueryText: "pending tasks"}}, nil).Once()
	app := newTestApp(engine, recorder)

	status, body := doJSON(t, app, "GET", "/api/v1/cortex/history?user_id=u1&limit=5", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["history"], 1)

	recorder.On("List", mock.Anything, "u2", 20).Return([]models.QueryRecord{}, nil).Once()
	status, body = doJSON(t, app, "GET", "/api/v1/cortex/history?user_id=u2", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["history"])

	status, body = doJSON(t, app, "GET", "/api/v1/cortex/history", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "user_id is required", body["error"])
	recorder.AssertExpectations(t)
}

func TestHistory_WithoutRecorder(t *testing.T) {
	status, body := doJSON(t, newTestApp(&mockEngine{}, nil), "GET", "/api/v1/cortex/history?user_id=u1", "")

	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["history"])
}
