package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/circuit"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// HTTPConfig mirrors models/target.py's HTTPConfig.
type HTTPConfig struct {
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout int               `mapstructure:"timeout"`
}

func decodeHTTPConfig(raw map[string]any) (HTTPConfig, error) {
	cfg := HTTPConfig{Method: "POST", Timeout: 30}
	if err := decodeInto(raw, &cfg); err != nil {
		return HTTPConfig{}, err
	}
	if err := requireField(raw, "url"); err != nil {
		return HTTPConfig{}, err
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return HTTPConfig{}, simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("invalid HTTP url %q", cfg.URL))
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	switch cfg.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return HTTPConfig{}, simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("unsupported HTTP method %q", cfg.Method))
	}
	if cfg.Timeout < 1 || cfg.Timeout > 300 {
		cfg.Timeout = 30
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return cfg, nil
}

// HTTP is the Connector for plain HTTP/HTTPS endpoints. It wraps every send
// in a circuit breaker: the original leaves HTTP and WebSocket as the two
// target kinds with "open the circuit to let the downstream recover"
// semantics (see §Open Question resolutions).
type HTTP struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *circuit.Breaker
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		breaker: circuit.New(circuit.Config{Name: "http:" + cfg.URL}),
	}
}

func (h *HTTP) Kind() model.TargetKind { return model.TargetHTTP }

// Connect is a no-op: the underlying http.Client is already a pooled
// transport and needs no explicit handshake.
func (h *HTTP) Connect(ctx context.Context) error { return nil }

func (h *HTTP) Send(ctx context.Context, payload model.Payload) error {
	return h.breaker.Call(ctx, func() error {
		return h.doSend(ctx, payload)
	})
}

func (h *HTTP) doSend(ctx context.Context, payload model.Payload) error {
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	var req *http.Request
	var err error
	if h.cfg.Method == http.MethodGet {
		u, parseErr := url.Parse(h.cfg.URL)
		if parseErr != nil {
			return simerrors.Wrap(simerrors.SendFailed, "failed to parse HTTP target URL", parseErr)
		}
		q := u.Query()
		for k, v := range payload {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, h.cfg.Method, u.String(), nil)
	} else {
		body, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return simerrors.Wrap(simerrors.SendFailed, "failed to marshal HTTP payload", marshalErr)
		}
		req, err = http.NewRequestWithContext(ctx, h.cfg.Method, h.cfg.URL, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "failed to build HTTP request", err)
	}
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return simerrors.Wrap(simerrors.ConnectionFailed, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		log.Warn().Int("status", resp.StatusCode).Str("url", h.cfg.URL).Bytes("body", b).Msg("http target rejected payload")
		if resp.StatusCode >= 500 {
			// Force a fresh connection on the next send rather than reusing a
			// pooled one to a server that just returned 5xx (§4.1).
			h.client.CloseIdleConnections()
		}
		return simerrors.New(simerrors.SendFailed, fmt.Sprintf("HTTP %s failed with status %d", h.cfg.Method, resp.StatusCode))
	}
	return nil
}

func (h *HTTP) Disconnect(ctx context.Context) error {
	h.client.CloseIdleConnections()
	return nil
}
