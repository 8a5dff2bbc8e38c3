package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/circuit"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// WebSocketConfig mirrors models/target.py's WebSocketConfig.
type WebSocketConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	PingInterval int              `mapstructure:"ping_interval"`
}

func decodeWebSocketConfig(raw map[string]any) (WebSocketConfig, error) {
	cfg := WebSocketConfig{PingInterval: 20}
	if err := decodeInto(raw, &cfg); err != nil {
		return WebSocketConfig{}, err
	}
	if err := requireField(raw, "url"); err != nil {
		return WebSocketConfig{}, err
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return WebSocketConfig{}, simerrors.New(simerrors.ConfigInvalid, "websocket url must start with ws:// or wss://")
	}
	if cfg.PingInterval < 1 || cfg.PingInterval > 300 {
		cfg.PingInterval = 20
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return cfg, nil
}

const (
	wsMaxRetries       = 5
	wsBaseDelay        = 1 * time.Second
	wsMaxDelay         = 60 * time.Second
	wsFailureThreshold = 3
	wsRecoveryTimeout  = 30 * time.Second
)

// WebSocket is the Connector for ws:// / wss:// endpoints. It layers a
// circuit breaker (trip after wsFailureThreshold consecutive dial
// failures, cool down for wsRecoveryTimeout) underneath an exponential
// backoff retry loop, and runs a background ping monitor that triggers a
// reconnect the moment a ping fails — the same two-layer resilience
// websocket_connector.py builds by hand with its own state machine.
type WebSocket struct {
	cfg     WebSocketConfig
	breaker *circuit.Breaker

	mu             sync.Mutex
	conn           *websocket.Conn
	retryCount     int
	monitorCancel  context.CancelFunc
	monitorRunning bool
}

func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	return &WebSocket{
		cfg: cfg,
		breaker: circuit.New(circuit.Config{
			Name:             "websocket:" + cfg.URL,
			FailureThreshold: wsFailureThreshold,
			RecoveryTimeout:  wsRecoveryTimeout,
		}),
	}
}

func (w *WebSocket) Kind() model.TargetKind { return model.TargetWebSocket }

func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	alreadyConnected := w.conn != nil
	w.mu.Unlock()
	if alreadyConnected {
		return nil
	}

	if err := w.dialWithBackoff(ctx); err != nil {
		return err
	}
	w.startAutoReconnect(ctx)
	return nil
}

// dialWithBackoff retries a single dial attempt up to wsMaxRetries times
// with exponential backoff (base 1s, capped at 60s), the whole attempt
// itself gated by the circuit breaker so a persistently unreachable
// endpoint stops being dialed at all once the breaker opens.
func (w *WebSocket) dialWithBackoff(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= wsMaxRetries; attempt++ {
		err := w.breaker.Call(ctx, func() error { return w.dialOnce(ctx) })
		if err == nil {
			w.mu.Lock()
			w.retryCount = 0
			w.mu.Unlock()
			return nil
		}
		lastErr = err
		if err == circuit.ErrCircuitOpen {
			return simerrors.Wrap(simerrors.CircuitOpen, "websocket circuit open, skipping dial", err)
		}

		w.mu.Lock()
		w.retryCount = attempt + 1
		w.mu.Unlock()

		if attempt == wsMaxRetries {
			break
		}
		delay := backoffDelay(attempt)
		log.Warn().Err(err).Str("url", w.cfg.URL).Dur("retry_in", delay).Msg("websocket dial failed, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return simerrors.Wrap(simerrors.ConnectionFailed, "websocket dial exhausted retries", lastErr)
}

func backoffDelay(attempt int) time.Duration {
	d := wsBaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if d > wsMaxDelay {
		d = wsMaxDelay
	}
	return d
}

func (w *WebSocket) dialOnce(ctx context.Context) error {
	header := make(http.Header, len(w.cfg.Headers))
	for k, v := range w.cfg.Headers {
		header.Set(k, v)
	}
	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return simerrors.Wrap(simerrors.ConfigInvalid, "invalid websocket url", err)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	log.Info().Str("url", w.cfg.URL).Msg("websocket dialing")
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	log.Info().Str("url", w.cfg.URL).Msg("websocket connected")
	return nil
}

func (w *WebSocket) Send(ctx context.Context, payload model.Payload) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		if err := w.dialWithBackoff(ctx); err != nil {
			return err
		}
		w.mu.Lock()
		conn = w.conn
		w.mu.Unlock()
	}

	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "failed to marshal websocket payload", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, body); err == nil {
		return nil
	}

	// One reconnect-and-retry, matching send()'s single fallback attempt
	// in the original connector.
	w.mu.Lock()
	w.conn = nil
	w.mu.Unlock()
	if err := w.dialWithBackoff(ctx); err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "websocket send failed and reconnect did not succeed", err)
	}
	w.mu.Lock()
	conn = w.conn
	w.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "websocket send failed after reconnect", err)
	}
	return nil
}

// startAutoReconnect pings the connection every ping_interval seconds;
// a failed ping tears down the connection and triggers a fresh
// dialWithBackoff, mirroring _auto_reconnect_loop.
func (w *WebSocket) startAutoReconnect(ctx context.Context) {
	w.mu.Lock()
	if w.monitorRunning {
		w.mu.Unlock()
		return
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	w.monitorCancel = cancel
	w.monitorRunning = true
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Duration(w.cfg.PingInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				if err := w.ping(); err != nil {
					log.Warn().Err(err).Str("url", w.cfg.URL).Msg("websocket ping failed, reconnecting")
					w.mu.Lock()
					if w.conn != nil {
						_ = w.conn.Close()
					}
					w.conn = nil
					w.mu.Unlock()
					if err := w.dialWithBackoff(monitorCtx); err != nil {
						log.Error().Err(err).Str("url", w.cfg.URL).Msg("websocket auto-reconnect failed")
					}
				}
			}
		}
	}()
}

func (w *WebSocket) ping() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return simerrors.New(simerrors.ConnectionFailed, "no active websocket connection to ping")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// ConnectionStats implements connector.ConnectionStatser.
func (w *WebSocket) ConnectionStats() ConnectionStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.breaker.Stats()
	lastFailure := ""
	if lf := w.breaker.LastFailure(); !lf.IsZero() {
		lastFailure = lf.UTC().Format(time.RFC3339)
	}
	return ConnectionStats{
		Connected:           w.conn != nil,
		CircuitState:        string(stats.State),
		RetryCount:          w.retryCount,
		FailureCount:        stats.ConsecutiveFailures,
		LastFailure:         lastFailure,
		AutoReconnectActive: w.monitorRunning,
	}
}

func (w *WebSocket) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	if w.monitorCancel != nil {
		w.monitorCancel()
		w.monitorRunning = false
	}
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
