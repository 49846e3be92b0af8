package companion

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/benvon/mentra/internal/localstore"
	logpkg "github.com/benvon/mentra/internal/logger"
)

// maxMessageBody bounds a message envelope.
const maxMessageBody = 1 << 20

// Channel delivers requests to an agent and returns its reply. *Agent is
// the in-process channel; *HTTPChannel reaches an agent in a daemon.
type Channel interface {
	Send(ctx context.Context, req Request) (Response, error)
}

var (
	_ Channel = (*Agent)(nil)
	_ Channel = (*HTTPChannel)(nil)
)

// Navigator runs the navigation flow.
type Navigator interface {
	Navigate(ctx context.Context, rawURL string) (NavigateResult, error)
}

// Envelope is the wire form of a request: {"type": kind, "payload": {...}}.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the wire form of a response.
type Reply struct {
	OK      bool            `json:"ok"`
	Type    Kind            `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EncodeRequest wraps req in an envelope.
func EncodeRequest(req Request) (Envelope, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", req.Kind(), err)
	}
	return Envelope{Type: req.Kind(), Payload: payload}, nil
}

// DecodeRequest returns the typed request carried by env. A missing payload
// decodes to the zero request.
func DecodeRequest(env Envelope) (Request, error) {
	c, err := lookupCodec(env.Type)
	if err != nil {
		return nil, err
	}
	v := c.request()
	if len(env.Payload) > 0 && !bytes.Equal(env.Payload, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(env.Payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", env.Type, err)
		}
	}
	return deref(v)
}

// DecodeResponse returns the typed response of kind carried by payload.
func DecodeResponse(kind Kind, payload json.RawMessage) (Response, error) {
	c, err := lookupCodec(kind)
	if err != nil {
		return nil, err
	}
	v := c.response()
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("decoding %s reply: %w", kind, err)
	}
	return derefResponse(v)
}

// NewHandler serves the message channel and the navigation hook:
//
//	POST /messages  Envelope -> Reply
//	POST /navigate  {"url": "..."} -> NavigateResult
//	GET  /health
func NewHandler(ch Channel, nav Navigator, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &channelServer{channel: ch, navigator: nav, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/messages", s.handleMessage)
	if nav != nil {
		r.Post("/navigate", s.handleNavigate)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Reply{Error: "Route not found"})
	})
	return r
}

type channelServer struct {
	channel   Channel
	navigator Navigator
	logger    *zap.Logger
}

func (s *channelServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBody)
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, Reply{Error: "invalid message envelope"})
		return
	}
	req, err := DecodeRequest(env)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Reply{Type: env.Type, Error: err.Error()})
		return
	}

	start := time.Now()
	resp, err := s.channel.Send(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("message_handler_failed",
				zap.String("kind", string(env.Type)),
				zap.String("error", logpkg.SanitizeError(err)),
			)
		}
		writeJSON(w, status, Reply{Type: env.Type, Error: logpkg.SanitizeString(err.Error(), 200)})
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Reply{Type: env.Type, Error: "failed to encode reply"})
		return
	}
	s.logger.Debug("message_handled",
		zap.String("kind", string(env.Type)),
		zap.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, Reply{OK: true, Type: env.Type, Payload: payload})
}

func (s *channelServer) handleNavigate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBody)
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.URL) == "" {
		writeJSON(w, http.StatusBadRequest, Reply{Error: "Missing 'url' in request body"})
		return
	}
	res, err := s.navigator.Navigate(r.Context(), body.URL)
	if err != nil {
		s.logger.Warn("navigate_failed",
			zap.String("url", logpkg.SanitizeURL(body.URL)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		writeJSON(w, statusFor(err), Reply{Error: logpkg.SanitizeString(err.Error(), 200)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps handler errors onto HTTP statuses.
func statusFor(err error) int {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr), errors.Is(err, ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, localstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, localstore.ErrAlreadySet):
		return http.StatusConflict
	case errors.Is(err, ErrNoPrompter):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RemoteError is a failed reply from a daemon.
type RemoteError struct {
	Status  int
	Kind    Kind
	Message string
}

func (e *RemoteError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("companion returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Kind, e.Status, e.Message)
}

// HTTPChannel sends messages to a daemon's /messages endpoint.
type HTTPChannel struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPChannel targets the daemon at baseURL, e.g. http://127.0.0.1:7420.
// A nil client uses one with a 60s timeout, long enough for a prompt answer
// and a coaching reply.
func NewHTTPChannel(baseURL string, client *http.Client) *HTTPChannel {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPChannel{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// Send posts req and decodes the typed reply.
func (c *HTTPChannel) Send(ctx context.Context, req Request) (Response, error) {
	env, err := EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	var reply Reply
	status, err := c.post(ctx, "/messages", env, &reply)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !reply.OK {
		return nil, &RemoteError{Status: status, Kind: req.Kind(), Message: reply.Error}
	}
	return DecodeResponse(req.Kind(), reply.Payload)
}

// Navigate posts rawURL to the daemon's navigation hook.
func (c *HTTPChannel) Navigate(ctx context.Context, rawURL string) (NavigateResult, error) {
	var raw json.RawMessage
	status, err := c.post(ctx, "/navigate", map[string]string{"url": rawURL}, &raw)
	if err != nil {
		return NavigateResult{}, err
	}
	if status != http.StatusOK {
		var reply Reply
		_ = json.Unmarshal(raw, &reply)
		return NavigateResult{}, &RemoteError{Status: status, Message: reply.Error}
	}
	var res NavigateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return NavigateResult{}, fmt.Errorf("decoding navigate reply: %w", err)
	}
	return res, nil
}

func (c *HTTPChannel) post(ctx context.Context, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("companion not reachable, is the daemon running? (%w)", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMessageBody)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding reply: %w", err)
	}
	return resp.StatusCode, nil
}
