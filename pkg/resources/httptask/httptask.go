// Package httptask posts a task's input payload as JSON to the URL carried
// in the resource identifier, e.g. "http:https://api.example.test/charge".
package httptask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/flowlocal/flowlocal/pkg/protocol"
)

const (
	resourcePrefix = "http:"

	defaultTimeout = 30 * time.Second
)

var ErrMissingURL = errors.New("http resource identifier carries no URL")

type Handler struct {
	logger *slog.Logger
	client *http.Client
}

func NewHandler(logger *slog.Logger, client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Handler{
		logger: logger.With("module", "http_resource"),
		client: client,
	}
}

func (h *Handler) Handle(ctx context.Context, resource string, input any) (any, error) {
	url := strings.TrimPrefix(resource, resourcePrefix)
	if url == "" || url == resource {
		return nil, protocol.NewTaskError(protocol.ErrorRuntime, ErrMissingURL.Error())
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("encoding task input: %s", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, protocol.NewTaskError(protocol.ErrorRuntime,
			fmt.Sprintf("building http request: %s", err))
	}

	req.Header.Set("Content-Type", "application/json")

	h.logger.DebugContext(ctx, "Invoking http resource", "url", url, "bytes", len(payload))

	resp, err := h.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, protocol.NewTimeoutError(err.Error())
		}

		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading http response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, protocol.NewTaskError(protocol.ErrorTaskFailed,
			fmt.Sprintf("http resource returned status %d", resp.StatusCode))
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "http"
}

func (*Factory) Create(logger *slog.Logger) (protocol.Handler, error) {
	return NewHandler(logger, nil), nil
}
