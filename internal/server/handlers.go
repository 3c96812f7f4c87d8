package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"cohere-bridge/internal/metrics"
	"cohere-bridge/internal/stream"
	"cohere-bridge/internal/translator"
)

const (
	contentTypeJSON        = "application/json; charset=UTF-8"
	contentTypeEventStream = "text/event-stream; charset=UTF-8"
	authRequiredMessage    = "403 Auth Required"
)

// hopHeaders are not copied when an upstream response is forwarded.
var hopHeaders = map[string]struct{}{
	"Connection":                   {},
	"Keep-Alive":                   {},
	"Transfer-Encoding":            {},
	"Content-Length":               {},
	"Access-Control-Allow-Origin":  {},
	"Access-Control-Allow-Headers": {},
}

func (s *Server) handleChat(c echo.Context) error {
	req := c.Request()
	logger := slog.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))

	credential, ok := s.credential(req)
	if !ok {
		return c.String(http.StatusForbidden, authRequiredMessage)
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}

	query := req.URL.Query()
	chatReq, parsed := translator.ParseChatRequest(body, query, s.defaults)
	if !parsed {
		logger.Debug("request body unusable, using fallback request", "bytes", len(body))
	}
	upstreamReq := translator.ToCohere(chatReq, query.Get("model"), s.defaults.Model)

	mode := "non_stream"
	if upstreamReq.Stream {
		mode = "stream"
	}

	start := time.Now()
	resp, err := s.upstream.Chat(req.Context(), upstreamReq, credential)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(mode, "error").Inc()
		logger.Error("upstream chat request failed", "model", upstreamReq.Model, "err", err)
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider error",
			Type:    "upstream_error",
		}
	}
	metrics.UpstreamLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequestsTotal.WithLabelValues(mode, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("forwarding upstream error response", "status", resp.StatusCode, "model", upstreamReq.Model)
		return forwardResponse(c, resp)
	}

	created := s.now().Unix()
	if !upstreamReq.Stream {
		return writeCompletion(c, resp, upstreamReq.Model, created)
	}
	return writeStream(c, resp, upstreamReq.Model, created, logger)
}

// credential returns the value sent upstream as the Authorization header.
func (s *Server) credential(r *http.Request) (string, bool) {
	if auth := r.Header.Get(echo.HeaderAuthorization); auth != "" {
		return auth, true
	}
	if s.cfg.Auth.AllowQueryKey {
		if key := r.URL.Query().Get("key"); key != "" {
			return "bearer " + key, true
		}
	}
	return "", false
}

// readBody returns the raw request body. Bodies that cannot be read are
// treated as empty so the request falls back to defaults; only an oversized
// body is rejected.
func readBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	if req.Body == nil {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: "request body is too large",
				Type:    "invalid_request_error",
			}
		}
		return nil, nil
	}
	return body, nil
}

func writeCompletion(c echo.Context, resp *http.Response, model string, created int64) error {
	defer resp.Body.Close()

	completion := translator.FromCohereResponse(resp.Body, model, created)
	data, err := translator.Encode(completion)
	if err != nil {
		return err
	}
	return c.Blob(resp.StatusCode, contentTypeJSON, data)
}

func writeStream(c echo.Context, resp *http.Response, model string, created int64, logger *slog.Logger) error {
	res := c.Response()
	header := res.Header()
	header.Set(echo.HeaderContentType, contentTypeEventStream)
	header.Set("Cache-Control", "no-cache")
	res.WriteHeader(resp.StatusCode)
	res.Flush()

	tr := translator.NewEventTranslator(model, created, logger)
	pipeline := stream.NewPipeline(tr, logger)
	if err := pipeline.Run(c.Request().Context(), resp.Body, stream.NewEventWriter(res)); err != nil {
		logger.Warn("stream translation ended early", "model", model, "err", err)
	}
	return nil
}

// forwardResponse relays an upstream response unchanged.
func forwardResponse(c echo.Context, resp *http.Response) error {
	defer resp.Body.Close()

	header := c.Response().Header()
	for key, values := range resp.Header {
		if _, skip := hopHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for _, v := range values {
			header.Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		slog.Warn("copy upstream error body", "err", err)
	}
	return nil
}
