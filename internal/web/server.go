// Package web serves the browser chat form and its JSON API:
//
//	GET  /                   static chat page
//	POST /api/chat/send      {message, userName?} → {userMessage, aiMessage, requestId}
//	GET  /api/chat/history   → {messages}
//	POST /api/chat/clear     → {ok: true}
//	GET  /healthz            → {status: "ok"}
//	GET  /metrics            Prometheus exposition
//
// Every response carries an X-Request-Id header. Upstream completion failures
// are not errors here: the reply is the fallback text inside a 200.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/awaybot/internal/ai"
	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/logger"
	"github.com/edgard/awaybot/internal/metrics"
)

const (
	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-Id"

	// DefaultUserName is used when the form omits userName.
	DefaultUserName = "Friend"

	maxBodyBytes    = 64 * 1024
	shutdownTimeout = 5 * time.Second
)

//go:embed static/index.html
var staticFiles embed.FS

// Responder generates reply text. It must not fail.
type Responder interface {
	GenerateReply(ctx context.Context, turn ai.Turn) string
}

// Deps holds the server collaborators. Metrics and Clock may be nil.
type Deps struct {
	Responder Responder
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	addr       string
	senderName string
	responder  Responder
	history    *History
	validate   *validator.Validate
	metrics    *metrics.Metrics
	clock      clockwork.Clock
	log        *slog.Logger
	server     *http.Server
}

type sendRequest struct {
	Message  string `json:"message"  validate:"required,max=4000"`
	UserName string `json:"userName" validate:"max=100"`
}

type sendResponse struct {
	UserMessage ChatMessage `json:"userMessage"`
	AIMessage   ChatMessage `json:"aiMessage"`
	RequestID   string      `json:"requestId"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

type requestIDKey struct{}

// New creates the HTTP surface for cfg.
func New(cfg config.WebConfig, deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		addr:       cfg.Addr,
		senderName: cfg.SenderName,
		responder:  deps.Responder,
		history:    NewHistory(cfg.HistoryMode, cfg.HistoryLimit),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		metrics:    deps.Metrics,
		clock:      clock,
		log:        deps.Logger.With("component", "web"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/send", s.handleSend)
	mux.HandleFunc("GET /api/chat/history", s.handleHistory)
	mux.HandleFunc("POST /api/chat/clear", s.handleClear)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /{$}", s.handleIndex)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Replies may wait on the completion backend.
		WriteTimeout: 2 * time.Minute,
	}
	return s
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("web listen %s: %w", s.addr, err)
	}
	s.log.Info("HTTP server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestID(ctx)

	var req sendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.log.DebugContext(ctx, "Rejecting malformed send request", "request_id", reqID, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body", RequestID: reqID})
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	req.UserName = strings.TrimSpace(req.UserName)
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err), RequestID: reqID})
		return
	}
	if req.UserName == "" {
		req.UserName = DefaultUserName
	}

	s.log.InfoContext(ctx, "Processing web message",
		"request_id", reqID,
		"sender", req.UserName,
		"text_preview", logger.Truncate(req.Message, 50))

	userMsg := ChatMessage{
		ID:        uuid.NewString(),
		Sender:    req.UserName,
		Text:      req.Message,
		Timestamp: s.clock.Now().UTC(),
		IsUser:    true,
	}

	start := s.clock.Now()
	reply := s.responder.GenerateReply(ctx, ai.Turn{SenderName: req.UserName, Text: req.Message})
	s.log.InfoContext(ctx, "Web reply generated", "request_id", reqID, "duration", s.clock.Since(start))

	aiMsg := ChatMessage{
		ID:        uuid.NewString(),
		Sender:    s.senderName,
		Text:      reply,
		Timestamp: s.clock.Now().UTC(),
	}
	s.history.Append(userMsg, aiMsg)

	writeJSON(w, http.StatusOK, sendResponse{UserMessage: userMsg, AIMessage: aiMsg, RequestID: reqID})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]ChatMessage{"messages": s.history.Messages()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.history.Clear()
	s.log.InfoContext(r.Context(), "Web chat history cleared", "request_id", requestID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, staticFiles, "static/index.html")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument assigns the request id and records the request count by route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set(RequestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		next.ServeHTTP(rec, r)

		if s.metrics != nil {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch f := verrs[0]; {
		case f.Field() == "Message" && f.Tag() == "required":
			return "Message is required"
		default:
			return fmt.Sprintf("%s is invalid (%s)", strings.ToLower(f.Field()[:1])+f.Field()[1:], f.Tag())
		}
	}
	return "Invalid request"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
