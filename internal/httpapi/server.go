package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"assistant/internal/assistant"
	"assistant/internal/domain"
	"assistant/internal/knowledge"
)

// Server exposes the assistant over HTTP.
type Server struct {
	engine    *gin.Engine
	assistant *assistant.Orchestrator
	knowledge *knowledge.Manager
	log       *zap.Logger
}

// NewServer builds the router. Both dependencies are required; the knowledge
// endpoints and grounded chat need the manager, chat needs the orchestrator.
func NewServer(o *assistant.Orchestrator, km *knowledge.Manager, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, assistant: o, knowledge: km, log: log}

	engine.GET("/api/v1/health", s.handleHealth)
	engine.POST("/api/v1/chat", s.handleChat)

	kb := engine.Group("/api/v1/knowledge")
	kb.POST("/ingest", s.handleIngest)
	kb.POST("/search", s.handleSearch)
	kb.GET("/stats", s.handleStats)
	kb.DELETE("/clear", s.handleClear)

	return s
}

// Handler returns the router for use with an http.Server or tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("http server listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type chatRequest struct {
	Message          string   `json:"message"`
	UseKnowledgeBase *bool    `json:"use_knowledge_base"`
	TopK             int      `json:"top_k"`
	Threshold        *float64 `json:"threshold"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      *float32 `json:"temperature"`
}

type chatResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
	Model    string   `json:"model"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.E(domain.KindInvalidInput, "request body is not valid json"))
		return
	}
	useKB := true
	if req.UseKnowledgeBase != nil {
		useKB = *req.UseKnowledgeBase
	}
	ans, err := s.assistant.Chat(c.Request.Context(), assistant.Request{
		Message:          req.Message,
		UseKnowledgeBase: useKB,
		TopK:             req.TopK,
		Threshold:        req.Threshold,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	sources := ans.Sources
	if sources == nil {
		sources = []string{}
	}
	c.JSON(http.StatusOK, chatResponse{Response: ans.Response, Sources: sources, Model: ans.Model})
}

type ingestRequest struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Category string            `json:"category"`
	Metadata map[string]string `json:"metadata"`
	Text     string            `json:"text"`
}

type ingestResponse struct {
	ID            string                   `json:"id"`
	ChunksCreated int                      `json:"chunks_created"`
	Status        string                   `json:"status"`
	Failed        []knowledge.ChunkFailure `json:"failed,omitempty"`
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.E(domain.KindInvalidInput, "request body is not valid json"))
		return
	}
	res, err := s.knowledge.Ingest(c.Request.Context(), domain.Document{
		ID:       req.ID,
		Source:   req.Source,
		Category: req.Category,
		Metadata: req.Metadata,
		Text:     req.Text,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := "success"
	if len(res.Failed) > 0 {
		status = "partial"
	}
	c.JSON(http.StatusOK, ingestResponse{
		ID:            res.DocumentID,
		ChunksCreated: res.ChunksCreated,
		Status:        status,
		Failed:        res.Failed,
	})
}

// searchRequest's threshold is a pointer so an explicit zero (keep every
// non-negative score) is distinguishable from an absent field.
type searchRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k"`
	Threshold *float64 `json:"threshold"`
}

type searchHit struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata"`
	Score      float64           `json:"score"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.E(domain.KindInvalidInput, "request body is not valid json"))
		return
	}
	params := s.knowledge.Defaults()
	if req.TopK > 0 {
		params.TopK = req.TopK
	}
	if req.Threshold != nil {
		params.Threshold = *req.Threshold
	}
	results, err := s.knowledge.Search(c.Request.Context(), req.Query, params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Text:       r.Chunk.Text,
			Source:     r.Chunk.Source,
			Metadata:   r.Chunk.Metadata,
			Score:      r.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.knowledge.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_chunks": stats.TotalChunks,
		"dimension":    stats.Dimension,
		"index_name":   stats.IndexName,
	})
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.knowledge.Clear(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleHealth probes the vector index; an unreachable index degrades the
// report without failing the endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	indexStatus := "ok"
	var stats gin.H
	if st, err := s.knowledge.Stats(ctx); err != nil {
		indexStatus = "unavailable"
	} else {
		stats = gin.H{"total_chunks": st.TotalChunks, "index_name": st.IndexName}
	}
	status := "ok"
	if indexStatus != "ok" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"index":  gin.H{"status": indexStatus, "stats": stats},
	})
}

// writeError maps error kinds onto HTTP status codes. Wrapped causes stay in
// the logs; the response carries only the kind and the safe message.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
	case domain.KindEmbeddingUnavailable, domain.KindIndexUnavailable, domain.KindGenerationUnavailable:
		status = http.StatusServiceUnavailable
	}
	message := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	if status >= 500 {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		s.log.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": gin.H{"kind": string(kind), "message": message}})
}
