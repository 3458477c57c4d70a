// Package httpapi implements the five gin handlers spec §6 names as the
// core's external HTTP surface, grounded on
// codeready-toolchain-tarsy/pkg/api/handlers.go's Server-struct-plus-gin
// pattern: a small Server wraps everything a handler needs, and streaming
// responses flush incrementally rather than buffering the full body.
package httpapi

import (
	"bufio"
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mptyl/thoth-sqlcore/internal/dbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/explainer"
	"github.com/mptyl/thoth-sqlcore/internal/feedback"
	"github.com/mptyl/thoth-sqlcore/internal/pipeline"
	"github.com/mptyl/thoth-sqlcore/internal/sessioncache"
	"github.com/mptyl/thoth-sqlcore/internal/vdbmanager"
	"github.com/mptyl/thoth-sqlcore/internal/wire"
	"github.com/mptyl/thoth-sqlcore/internal/workspace"
)

// Server bundles everything the five endpoints need.
type Server struct {
	cache      *sessioncache.Cache
	loader     workspace.Loader
	dbFactory  sessioncache.DBFactory
	vdbFactory sessioncache.VDBFactory
	feedback   *feedback.Sink
	explainer  *explainer.Explainer
	logger     *zap.SugaredLogger
}

// NewServer builds an httpapi.Server. vdbFactory is used only by Health's
// readiness sub-check; the pipeline itself resolves its own VdbManager
// through SessionCache.
func NewServer(cache *sessioncache.Cache, loader workspace.Loader, dbFactory sessioncache.DBFactory, vdbFactory sessioncache.VDBFactory, sink *feedback.Sink, exp *explainer.Explainer, logger *zap.SugaredLogger) *Server {
	return &Server{cache: cache, loader: loader, dbFactory: dbFactory, vdbFactory: vdbFactory, feedback: sink, explainer: exp, logger: logger}
}

// Register mounts the four POST endpoints plus GET /health onto engine. generate-sql
// and execute-query carry the per-IP rate limit since both drive LLM or
// database work; explain/feedback/health stay unthrottled.
func (s *Server) Register(engine *gin.Engine) {
	limited := RateLimit(5, 10)
	engine.POST("/generate-sql", limited, s.GenerateSQL)
	engine.POST("/explain-sql", s.ExplainSQL)
	engine.POST("/execute-query", limited, s.ExecuteQuery)
	engine.POST("/save-sql-feedback", s.SaveSQLFeedback)
	engine.GET("/health", s.Health)
}

// generateSQLRequest is POST /generate-sql's body (spec §6).
type generateSQLRequest struct {
	Question           string          `json:"question" binding:"required"`
	WorkspaceID        int64           `json:"workspace_id" binding:"required"`
	FunctionalityLevel string          `json:"functionality_level"`
	Flags              workspace.Flags `json:"flags"`
	Username           string          `json:"username"`
	SessionID          string          `json:"session_id"`
}

// GenerateSQL streams the wire frame grammar over the response body.
func (s *Server) GenerateSQL(c *gin.Context) {
	var req generateSQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	level := workspace.FunctionalityLevel(req.FunctionalityLevel)
	if level == "" {
		level = workspace.LevelBasic
	}

	key := sessioncache.Key{SessionID: req.SessionID, WorkspaceID: req.WorkspaceID, WorkspaceVersion: 1}
	controller, err := s.cache.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	writer := bufio.NewWriter(c.Writer)
	defer writer.Flush()

	frames := controller.Handle(c.Request.Context(), pipeline.Request{
		Question: req.Question, WorkspaceID: req.WorkspaceID, SessionID: req.SessionID,
		FunctionalityLevel: level, Flags: req.Flags, Username: req.Username,
	})

	ctx := c.Request.Context()
	for {
		frame, err := frames.Read(ctx)
		if err != nil {
			return
		}
		line, err := wire.Encode(frame)
		if err != nil {
			s.logger.Errorw("httpapi: failed to encode frame", "error", err)
			continue
		}
		if _, err := writer.WriteString(line); err != nil {
			return
		}
		writer.Flush()
		c.Writer.Flush()
	}
}

// explainSQLRequest is POST /explain-sql's body (spec §6).
type explainSQLRequest struct {
	WorkspaceID  int64    `json:"workspace_id" binding:"required"`
	Question     string   `json:"question" binding:"required"`
	GeneratedSQL string   `json:"generated_sql" binding:"required"`
	Schema       string   `json:"database_schema"`
	Evidence     []string `json:"evidence"`
	Language     string   `json:"language"`
}

// ExplainSQL synchronously explains an already-selected SQL statement.
func (s *Server) ExplainSQL(c *gin.Context) {
	var req explainSQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}

	hits := make([]vdbmanager.Hit, len(req.Evidence))
	for i, e := range req.Evidence {
		hits[i] = vdbmanager.Hit{Text: e}
	}

	explanation, err := s.explainer.Explain(c.Request.Context(), pipeline.ExplainDeps{
		Question: req.Question, SQL: req.GeneratedSQL, MSchema: req.Schema,
		Evidence: hits, Language: req.Language,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"explanation": explanation, "language": req.Language})
}

// executeQueryRequest is POST /execute-query's body (spec §6).
type executeQueryRequest struct {
	WorkspaceID int64  `json:"workspace_id" binding:"required"`
	SQL         string `json:"sql" binding:"required"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}

// ExecuteQuery runs sql read-only and returns one page of results.
func (s *Server) ExecuteQuery(c *gin.Context) {
	var req executeQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 50
	}

	ws, err := s.loader.Load(c.Request.Context(), req.WorkspaceID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	db, err := s.dbFactory(ctx, ws)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rows, err := db.Execute(ctx, req.SQL, dbmanager.FetchAll, 10*time.Second)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	totalRows := rows.Len()
	totalPages := int(math.Ceil(float64(totalRows) / float64(req.PageSize)))
	start := (req.Page - 1) * req.PageSize
	end := start + req.PageSize
	if start > totalRows {
		start = totalRows
	}
	if end > totalRows {
		end = totalRows
	}

	c.JSON(http.StatusOK, gin.H{
		"rows": rows.Records[start:end], "columns": rows.Columns,
		"page": req.Page, "total_rows": totalRows, "total_pages": totalPages,
	})
}

// saveFeedbackRequest is POST /save-sql-feedback's body (spec §6).
type saveFeedbackRequest struct {
	WorkspaceID int64    `json:"workspace_id" binding:"required"`
	Question    string   `json:"question" binding:"required"`
	SQL         string   `json:"sql" binding:"required"`
	Evidence    []string `json:"evidence"`
}

// SaveSQLFeedback persists an approved (question, sql, evidence) tuple.
func (s *Server) SaveSQLFeedback(c *gin.Context) {
	var req saveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.feedback.Save(c.Request.Context(), req.Question, req.SQL, req.Evidence)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": res.ID})
}

// Health reports liveness plus a best-effort readiness sub-check against
// the default workspace's DbManager and VdbManager. A probe failure
// degrades the response rather than failing it outright: §6 names /health
// as a liveness probe, so a struggling dependency should be visible to an
// operator without tripping a liveness-based restart.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var detail []string

	ws, err := s.loader.Load(ctx, 1)
	if err != nil {
		detail = append(detail, "workspace: "+err.Error())
	} else {
		if db, err := s.dbFactory(ctx, ws); err != nil {
			detail = append(detail, "db: "+err.Error())
		} else if _, err := db.Execute(ctx, "SELECT 1", dbmanager.FetchOne, 2*time.Second); err != nil {
			detail = append(detail, "db: "+err.Error())
		}

		if s.vdbFactory != nil {
			if vdb, err := s.vdbFactory(ctx, ws); err != nil {
				detail = append(detail, "vdb: "+err.Error())
			} else if _, err := vdb.SearchEvidence(ctx, "", 1, nil); err != nil {
				detail = append(detail, "vdb: "+err.Error())
			}
		}
	}

	if len(detail) > 0 {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "detail": detail})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
