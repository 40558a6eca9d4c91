// Package server exposes the question answering service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"docqa/internal/qa"
)

const (
	// ReadyMessage is returned by GET /.
	ReadyMessage = "Document Q&A Chatbot API is running."
	// MissingQuestion is the 400 error text for unusable /ask bodies.
	MissingQuestion = "Request must contain 'question' field."

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question       string `json:"question"`
	IncludeSources bool   `json:"include_sources,omitempty"`
}

// Source describes one chunk an answer was grounded on.
type Source struct {
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// AskResponse is the success body of POST /ask.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server serves GET / and POST /ask.
type Server struct {
	answerer      qa.Answerer
	logger        *zap.Logger
	answerTimeout time.Duration
}

// Option customises a Server.
type Option func(*Server)

// WithAnswerTimeout bounds the time spent answering one question.
func WithAnswerTimeout(d time.Duration) Option {
	return func(s *Server) { s.answerTimeout = d }
}

// New creates a server answering with answerer.
func New(answerer qa.Answerer, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{answerer: answerer, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /ask", s.handleAsk)
	return s.withRequestLog(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": ReadyMessage})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: MissingQuestion})
		return
	}
	logger := s.logger.With(zap.String("request_id", requestID(r.Context())))
	logger.Info("received question", zap.String("question", req.Question))

	ctx := r.Context()
	if s.answerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.answerTimeout)
		defer cancel()
	}
	ans, err := s.answerer.Answer(ctx, req.Question)
	if err != nil {
		logger.Error("answer failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := AskResponse{Answer: ans.Text}
	if req.IncludeSources {
		resp.Sources = make([]Source, 0, len(ans.Sources))
		for _, src := range ans.Sources {
			resp.Sources = append(resp.Sources, Source{
				Source:  src.Chunk.Source,
				Page:    src.Chunk.Page,
				ChunkID: src.Chunk.ChunkID,
				Score:   src.Score,
				Text:    src.Chunk.Text,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeAsk reports false for anything that does not carry a non-blank string question.
func decodeAsk(body io.Reader) (AskRequest, bool) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil || raw == nil {
		return AskRequest{}, false
	}
	q, ok := raw["question"]
	if !ok {
		return AskRequest{}, false
	}
	var req AskRequest
	if err := json.Unmarshal(q, &req.Question); err != nil || strings.TrimSpace(req.Question) == "" {
		return AskRequest{}, false
	}
	if v, ok := raw["include_sources"]; ok {
		_ = json.Unmarshal(v, &req.IncludeSources)
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
