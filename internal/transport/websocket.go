package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/storage"
)

// wireFrame is the single message envelope multiplexed over one socket:
// invoke/invokeResult share a Request id with the engine's own
// actionlog.Record.ID, so a completion response is matched to its
// waiting caller without a separate correlation id.
type wireFrame struct {
	Kind      string          `json:"kind"` // "invoke", "invokeResult", "query", "queryResult", "ping", "pong"
	Request   string          `json:"request,omitempty"`
	Action    string          `json:"action,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Variant   string          `json:"variant,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Relation  string          `json:"relation,omitempty"`
	Records   json.RawMessage `json:"records,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// WebSocketConfig mirrors the reconnect/ping tuning knobs of a
// long-lived duplex transport.
type WebSocketConfig struct {
	URL                    string
	ReconnectInitialDelay  time.Duration
	ReconnectMaxDelay      time.Duration
	ReconnectBackoffFactor float64
	PingInterval           time.Duration
	RequestTimeout         time.Duration
}

func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:                    url,
		ReconnectInitialDelay:  1 * time.Second,
		ReconnectMaxDelay:      30 * time.Second,
		ReconnectBackoffFactor: 2.0,
		PingInterval:           30 * time.Second,
		RequestTimeout:         30 * time.Second,
	}
}

// WebSocket is a duplex Transport adapter: invocations are sent as
// "invoke" frames and completions arrive asynchronously (including gate
// completions pushed by the remote side well after the request), so
// pending replies are tracked in a map keyed by request id rather than
// read synchronously off the socket.
type WebSocket struct {
	cfg WebSocketConfig

	connMu sync.RWMutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan wireFrame

	sendChan chan wireFrame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	w := &WebSocket{
		cfg:      cfg,
		pending:  make(map[string]chan wireFrame),
		sendChan: make(chan wireFrame, 100),
		ctx:      ctx,
		cancel:   cancel,
	}
	w.wg.Add(1)
	go w.connectionLoop()
	return w
}

func (w *WebSocket) Close() error {
	w.cancel()
	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.connMu.Unlock()
	w.wg.Wait()
	return nil
}

func (w *WebSocket) connectionLoop() {
	defer w.wg.Done()
	delay := w.cfg.ReconnectInitialDelay
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(w.ctx, w.cfg.URL, http.Header{})
		if err != nil {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * w.cfg.ReconnectBackoffFactor)
			if delay > w.cfg.ReconnectMaxDelay {
				delay = w.cfg.ReconnectMaxDelay
			}
			continue
		}
		delay = w.cfg.ReconnectInitialDelay

		w.connMu.Lock()
		w.conn = conn
		w.connMu.Unlock()

		w.runConnection(conn)

		w.connMu.Lock()
		w.conn = nil
		w.connMu.Unlock()
	}
}

func (w *WebSocket) runConnection(conn *websocket.Conn) {
	senderDone := make(chan struct{})
	go func() { defer close(senderDone); w.senderLoop(conn) }()

	pingDone := make(chan struct{})
	go func() { defer close(pingDone); w.pingLoop(conn) }()

	w.readLoop(conn)

	conn.Close()
	<-senderDone
	<-pingDone
}

func (w *WebSocket) senderLoop(conn *websocket.Conn) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case frame, ok := <-w.sendChan:
			if !ok {
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

func (w *WebSocket) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		var frame wireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Request == "" {
			continue
		}
		w.pendingMu.Lock()
		ch, ok := w.pending[frame.Request]
		w.pendingMu.Unlock()
		if ok {
			ch <- frame
		}
	}
}

func (w *WebSocket) await(requestID string) chan wireFrame {
	ch := make(chan wireFrame, 1)
	w.pendingMu.Lock()
	w.pending[requestID] = ch
	w.pendingMu.Unlock()
	return ch
}

func (w *WebSocket) forget(requestID string) {
	w.pendingMu.Lock()
	delete(w.pending, requestID)
	w.pendingMu.Unlock()
}

func (w *WebSocket) send(ctx context.Context, frame wireFrame) error {
	select {
	case w.sendChan <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return fmt.Errorf("transport: websocket closed")
	}
}

func (w *WebSocket) Invoke(ctx context.Context, invocation actionlog.Record) (actionlog.Record, error) {
	input, err := json.Marshal(invocation.Input)
	if err != nil {
		return actionlog.Record{}, fmt.Errorf("transport: encode invocation input: %w", err)
	}
	reply := w.await(invocation.ID)
	defer w.forget(invocation.ID)

	if err := w.send(ctx, wireFrame{Kind: "invoke", Request: invocation.ID, Action: invocation.Action, Input: input}); err != nil {
		return actionlog.Record{}, err
	}

	timeout := w.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case frame := <-reply:
		if frame.Error != "" {
			return actionlog.Record{
				ID: invocation.ID, Type: actionlog.TypeCompletion,
				Concept: invocation.Concept, Action: invocation.Action, Flow: invocation.Flow,
				Variant: "error", Output: map[string]any{"message": frame.Error},
				Timestamp: time.Now().UTC(),
			}, nil
		}
		var output map[string]any
		if len(frame.Output) > 0 {
			if err := json.Unmarshal(frame.Output, &output); err != nil {
				return actionlog.Record{}, fmt.Errorf("transport: decode completion output: %w", err)
			}
		}
		return actionlog.Record{
			ID: invocation.ID, Type: actionlog.TypeCompletion,
			Concept: invocation.Concept, Action: invocation.Action, Flow: invocation.Flow,
			Variant: frame.Variant, Output: output, Timestamp: time.Now().UTC(),
		}, nil
	case <-ctx.Done():
		return actionlog.Record{}, ctx.Err()
	case <-time.After(timeout):
		return actionlog.Record{}, fmt.Errorf("transport: websocket invoke %s/%s timed out", invocation.Concept, invocation.Action)
	}
}

func (w *WebSocket) Query(ctx context.Context, req QueryRequest) ([]storage.Record, error) {
	requestID := "query-" + req.Relation + "-" + fmt.Sprint(time.Now().UnixNano())
	reply := w.await(requestID)
	defer w.forget(requestID)

	if err := w.send(ctx, wireFrame{Kind: "query", Request: requestID, Relation: req.Relation}); err != nil {
		return nil, err
	}
	select {
	case frame := <-reply:
		if frame.Kind == "error" || frame.Error == "not supported" {
			return nil, ErrQueryUnsupported
		}
		var records []storage.Record
		if len(frame.Records) > 0 {
			if err := json.Unmarshal(frame.Records, &records); err != nil {
				return nil, fmt.Errorf("transport: decode query records: %w", err)
			}
		}
		return records, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(w.cfg.RequestTimeout):
		return nil, ErrQueryUnsupported
	}
}

func (w *WebSocket) Health(ctx context.Context) (Health, error) {
	w.connMu.RLock()
	connected := w.conn != nil
	w.connMu.RUnlock()
	return Health{Available: connected, Latency: 0}, nil
}
