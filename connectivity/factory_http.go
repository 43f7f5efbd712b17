package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxHTTPResponseBody caps what is read from a remote node (1 MiB); a
// fill-and-send answer is a few hundred bytes.
const maxHTTPResponseBody int64 = 1 << 20

type httpConfig struct {
	TimeoutMs int64  `json:"timeout_ms"`
	Token     string `json:"token"`
}

// HTTPFactory creates Handlers that POST the JSON payload to a remote
// chatcast node, usually its /api/call/{service} route. An optional
// "token" in the route config is sent as a bearer token.
//
//	router.RegisterTransport("http", connectivity.HTTPFactory())
func HTTPFactory() TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if endpoint == "" {
			return nil, nil, fmt.Errorf("connectivity/http: empty endpoint")
		}
		var cfg httpConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("connectivity/http: parse config: %w", err)
			}
		}

		timeout := 60 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		client := &http.Client{Timeout: timeout}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")
			if cfg.Token != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Token)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBody))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("connectivity/http: status %d: %s", resp.StatusCode, body)
			}
			return body, nil
		}
		return handler, client.CloseIdleConnections, nil
	}
}
