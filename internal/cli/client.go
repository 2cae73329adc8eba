package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StageResponse — стадия run из API.
type StageResponse struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Stages     []StageResponse `json:"stages"`
	Payload    map[string]any  `json:"payload,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// CurrentStage возвращает имя последней стадии или "-".
func (r RunResponse) CurrentStage() string {
	if len(r.Stages) == 0 {
		return "-"
	}
	return r.Stages[len(r.Stages)-1].Name
}

// StartRunResponse — ответ на запуск run.
type StartRunResponse struct {
	ID string `json:"id"`
}

// StreamMessage — кадр потока событий /ws.
type StreamMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// LogEvent — data события log (и pipeline_done, где заполнен только PID).
type LogEvent struct {
	PID   string `json:"pid"`
	Stage string `json:"stage,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

// Decode разбирает data кадра.
func (m StreamMessage) Decode() (LogEvent, error) {
	var ev LogEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return ev, fmt.Errorf("decode %s event: %w", m.Event, err)
	}
	return ev, nil
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrStopWatch — сигнал из обработчика Watch о штатном завершении.
var ErrStopWatch = errors.New("stop watching")

// --- Client ---

// Client — HTTP-клиент для pipesim API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Health проверяет доступность API.
func (c *Client) Health() (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.get("/api/health", &resp)
	return resp.Status, err
}

// --- Runs ---

// ListRuns возвращает все runs.
func (c *Client) ListRuns() ([]RunResponse, error) {
	var runs []RunResponse
	err := c.get("/api/pipelines", &runs)
	return runs, err
}

// StartRun запускает новый run. payload может быть nil.
func (c *Client) StartRun(payload map[string]any) (string, error) {
	var resp StartRunResponse
	var body any
	if payload != nil {
		body = payload
	}
	err := c.post("/api/pipelines/run", body, &resp)
	return resp.ID, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/pipelines/"+id, &run)
	return &run, err
}

// EmitTest публикует диагностическое событие.
func (c *Client) EmitTest() error {
	return c.get("/api/emit_test", nil)
}

// --- Events ---

// EventStream — открытое подключение к /ws.
type EventStream struct {
	conn *websocket.Conn
	stop func() bool
}

// Subscribe подключается к /ws.
//
// Сервер регистрирует подписку до завершения handshake, поэтому
// события run, запущенного после Subscribe, не теряются.
func (c *Client) Subscribe(ctx context.Context) (*EventStream, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}

	// ReadJSON не принимает ctx: закрываем соединение при отмене
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	return &EventStream{conn: conn, stop: stop}, nil
}

// Next блокируется до следующего кадра.
// io.EOF — сервер закрыл поток штатно.
func (s *EventStream) Next() (StreamMessage, error) {
	var msg StreamMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return msg, io.EOF
		}
		return msg, fmt.Errorf("read event: %w", err)
	}
	return msg, nil
}

// Close закрывает подключение.
func (s *EventStream) Close() error {
	s.stop()
	return s.conn.Close()
}

// Watch вызывает fn для каждого кадра до ErrStopWatch, отмены ctx
// или закрытия потока сервером. В этих случаях возвращается nil.
func (c *Client) Watch(ctx context.Context, fn func(StreamMessage) error) error {
	stream, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	return consume(ctx, stream, fn)
}

func consume(ctx context.Context, stream *EventStream, fn func(StreamMessage) error) error {
	for {
		msg, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := fn(msg); err != nil {
			if errors.Is(err, ErrStopWatch) {
				return nil
			}
			return err
		}
	}
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doJSON(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doJSON(http.MethodPost, path, body, result)
}

func (c *Client) doJSON(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
