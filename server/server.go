package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/pkg/llm"
	"github.com/xhad/sectionrag/pkg/scraper"
)

const maxBodyBytes = 32 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

type Ingester interface {
	IngestMany(ctx context.Context, sections []models.Section) (models.BatchReport, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, results []models.SearchResult, onChunk func(string)) (string, error)
}

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Config struct {
	SearchLimit int
	Streaming   bool

	// Scraping of URLs sent in ingest messages
	MaxDepth  int
	RateLimit float64
}

// Deps are the pipeline pieces the server exposes. Chat may be nil, in
// which case ask requests are rejected.
type Deps struct {
	Ingester Ingester
	Searcher Searcher
	Chat     Answerer
	Store    Counter
}

// Message is the websocket envelope in both directions.
type Message struct {
	Type     string           `json:"type"`
	Content  string           `json:"content,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Sections []models.Section `json:"sections,omitempty"`
	Data     interface{}      `json:"data,omitempty"`
}

type WSServer struct {
	config Config
	deps   Deps
	logger zerolog.Logger
}

func NewWSServer(config Config, deps Deps, logger zerolog.Logger) (*WSServer, error) {
	if deps.Ingester == nil || deps.Searcher == nil || deps.Store == nil {
		return nil, errors.New("server needs an ingester, a searcher and a store")
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 5
	}
	return &WSServer{config: config, deps: deps, logger: logger}, nil
}

// Router wires the HTTP and websocket endpoints.
func (s *WSServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/search", s.handleSearch)
	r.Post("/ingest", s.handleIngest)
	r.Post("/ask", s.handleAsk)
	r.Get("/ws", s.handleWebSocket)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WSServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}

func (s *WSServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sections": n})
}

func (s *WSServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := s.config.SearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, &models.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}

	results, err := s.deps.Searcher.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type ingestRequest struct {
	Sections []models.Section `json:"sections"`
}

func (s *WSServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, &models.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	batch, err := s.deps.Ingester.IngestMany(r.Context(), req.Sections)
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, NewIngestResponse(batch))
}

type askRequest struct {
	Question string `json:"question"`
	Limit    int    `json:"limit"`
}

type AskResponse struct {
	Answer  string                `json:"answer"`
	Sources []string              `json:"sources"`
	Results []models.SearchResult `json:"results"`
}

func (s *WSServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, &models.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	resp, err := s.ask(r.Context(), req.Question, req.Limit, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *WSServer) ask(ctx context.Context, question string, limit int, onChunk func(string)) (AskResponse, error) {
	if s.deps.Chat == nil {
		return AskResponse{}, errChatDisabled
	}
	if limit <= 0 {
		limit = s.config.SearchLimit
	}

	results, err := s.deps.Searcher.Search(ctx, question, limit)
	if err != nil {
		return AskResponse{}, err
	}

	answer, err := s.deps.Chat.Answer(ctx, question, results, onChunk)
	if err != nil {
		return AskResponse{}, err
	}

	sources := llm.Sources(results)
	if sources == nil {
		sources = []string{}
	}
	return AskResponse{Answer: answer, Sources: sources, Results: results}, nil
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("error reading message")
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendMessage(ws, Message{Type: "error", Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	switch msg.Type {
	case "search":
		results, err := s.deps.Searcher.Search(ctx, msg.Content, msg.Limit)
		if err != nil {
			s.sendError(ws, err)
			return
		}
		s.sendMessage(ws, Message{Type: "results", Data: results})

	case "ingest":
		sections := msg.Sections
		if url := trimURL(urlRegex.FindString(msg.Content)); url != "" {
			scraped, err := s.scrape(ctx, ws, url)
			if err != nil {
				s.sendError(ws, err)
				return
			}
			sections = append(sections, scraped...)
		}
		if len(sections) == 0 {
			s.sendError(ws, &models.ValidationError{Field: "sections", Message: "nothing to ingest"})
			return
		}

		s.sendMessage(ws, Message{Type: "status", Content: fmt.Sprintf("Ingesting %d sections", len(sections))})
		batch, err := s.deps.Ingester.IngestMany(ctx, sections)
		if err != nil {
			s.sendError(ws, err)
		}
		s.sendMessage(ws, Message{Type: "report", Data: NewIngestResponse(batch)})

	case "ask":
		var onChunk func(string)
		if s.config.Streaming {
			onChunk = func(chunk string) {
				s.sendMessage(ws, Message{Type: "stream", Content: chunk})
			}
		}
		resp, err := s.ask(ctx, msg.Content, msg.Limit, onChunk)
		if err != nil {
			s.sendError(ws, err)
			return
		}
		s.sendMessage(ws, Message{Type: "response", Content: resp.Answer, Data: resp.Sources})

	default:
		s.sendMessage(ws, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *WSServer) scrape(ctx context.Context, ws *wsConn, url string) ([]models.Section, error) {
	s.sendMessage(ws, Message{Type: "status", Content: fmt.Sprintf("Processing URL: %s", url)})

	var processedCount int32
	sc, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:   url,
		MaxDepth:  s.config.MaxDepth,
		RateLimit: s.config.RateLimit,
		OnProgress: func(string) {
			n := atomic.AddInt32(&processedCount, 1)
			s.sendMessage(ws, Message{Type: "progress", Content: fmt.Sprintf("Scraped %d pages", n)})
		},
	}, s.logger)
	if err != nil {
		return nil, err
	}

	sections, err := sc.Scrape(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape URL: %w", err)
	}
	s.sendMessage(ws, Message{Type: "status", Content: fmt.Sprintf("Scraped %d pages", len(sections))})
	return sections, nil
}

func (s *WSServer) sendMessage(ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.logger.Warn().Err(err).Str("type", msg.Type).Msg("error sending message")
	}
}

func (s *WSServer) sendError(ws *wsConn, err error) {
	s.sendMessage(ws, Message{Type: "error", Content: err.Error()})
}

// ChunkResult mirrors models.ChunkStatus with the error as text.
type ChunkResult struct {
	Title string `json:"title"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Error string `json:"error,omitempty"`
}

type SectionResult struct {
	FilePath string        `json:"file_path"`
	Title    string        `json:"title"`
	Error    string        `json:"error,omitempty"`
	Chunks   []ChunkResult `json:"chunks"`
}

type IngestResponse struct {
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	ChunksStored int             `json:"chunks_stored"`
	Sections     []SectionResult `json:"sections"`
}

func NewIngestResponse(batch models.BatchReport) IngestResponse {
	resp := IngestResponse{
		Succeeded:    batch.Succeeded(),
		Failed:       batch.Failed(),
		ChunksStored: batch.ChunksStored(),
		Sections:     make([]SectionResult, 0, len(batch.Sections)),
	}
	for _, section := range batch.Sections {
		sr := SectionResult{
			FilePath: section.FilePath,
			Title:    section.Title,
			Error:    errorText(section.Err),
			Chunks:   make([]ChunkResult, 0, len(section.Chunks)),
		}
		for _, c := range section.Chunks {
			sr.Chunks = append(sr.Chunks, ChunkResult{
				Title: c.Title,
				Index: c.Index,
				Total: c.Total,
				Error: errorText(c.Err),
			})
		}
		resp.Sections = append(resp.Sections, sr)
	}
	return resp
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var errChatDisabled = errors.New("chat is not configured")

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmbeddingService):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errChatDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// trimURL strips trailing punctuation a chat message may glue to a URL.
func trimURL(url string) string {
	return strings.TrimRight(url, ".,;:!?)\"'")
}
