package handlers

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
)

func dialTestSocket(t *testing.T, engine Engine, recorder Recorder) *fastws.Conn {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h := NewWebSocketHandler(engine, recorder, Config{MaxQuestionLength: 200})
	app.Get("/ws", websocket.New(h.HandleConnection))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *fastws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg := map[string]any{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_StreamsAnswer(t *testing.T) {
	engine := &mockEngine{}
	recorder := &mockRecorder{}
	req := cortex.Request{Question: "pending tasks at Villa Samui", OrganizationID: "org1", UserID: "u1"}
	answer := sampleAnswer(req)
	engine.On("ProcessQuestion", mock.Anything, req).Return(answer, nil).Once()
	recorder.On("Record", mock.Anything, req, answer).Return("q-9", nil).Once()

	conn := dialTestSocket(t, engine, recorder)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":           "ask",
		"question":       "pending tasks at Villa Samui",
		"organizationId": "org1",
		"userId":         "u1",
	}))

	status := readFrame(t, conn)
	assert.Equal(t, "status", status["type"])

	var text strings.Builder
	var frame map[string]any
	for {
		frame = readFrame(t, conn)
		if frame["type"] != "chunk" {
			break
		}
		text.WriteString(frame["content"].(string))
	}

	assert.Equal(t, answer.Answer, text.String())
	assert.Equal(t, "complete", frame["type"])
	assert.Equal(t, "q-9", frame["id"])
	assert.Equal(t, "task_query", frame["intent"])
	assert.Equal(t, false, frame["cached"])
	assert.Len(t, frame["sources"], 1)
}

func TestWebSocket_InvalidQuestion(t *testing.T) {
	engine := &mockEngine{}
	conn := dialTestSocket(t, engine, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "question": "tasks"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "organizationId is required", frame["error"])
	engine.AssertNotCalled(t, "ProcessQuestion", mock.Anything, mock.Anything)
}

func TestWebSocket_EngineErrorKeepsConnection(t *testing.T) {
	engine := &mockEngine{}
	engine.On("ProcessQuestion", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
	conn := dialTestSocket(t, engine, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "question": "tasks", "organizationId": "org1"}))

	assert.Equal(t, "status", readFrame(t, conn)["type"])
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "Failed to process question", frame["error"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "question": "", "organizationId": "org1"}))
	assert.Equal(t, "error", readFrame(t, conn)["type"])
}

func TestWebSocket_DisconnectCancelsEngineCall(t *testing.T) {
	engine := &mockEngine{}
	entered := make(chan struct{})
	ended := make(chan error, 1)
	engine.On("ProcessQuestion", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			close(entered)
			select {
			case <-ctx.Done():
				ended <- ctx.Err()
			case <-time.After(2 * time.Second):
				ended <- nil
			}
		}).
		Return(nil, context.Canceled).Once()
	conn := dialTestSocket(t, engine, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ask", "question": "pending tasks", "organizationId": "org1"}))
	assert.Equal(t, "status", readFrame(t, conn)["type"])
	<-entered
	require.NoError(t, conn.Close())

	select {
	case err := <-ended:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("engine call was not released")
	}
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"Two", "tasks:", "\n", "-", "pool"}, splitIntoWords("Two  tasks:\n- pool"))
	assert.Equal(t, []string{"฿1,200"}, splitIntoWords(" ฿1,200 "))
	assert.Empty(t, splitIntoWords(""))
}
