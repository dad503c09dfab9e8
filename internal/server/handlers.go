package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// AnalyzeRequest is the body of POST /api/analyze
type AnalyzeRequest struct {
	// Name identifies the unit and selects the language by extension
	Name string `json:"name" binding:"required,max=1024"`
	// Language overrides extension detection (python, go, javascript)
	Language string `json:"language" binding:"omitempty,oneof=python py go golang javascript js node"`
	Content  string `json:"content" binding:"required,max=1048576"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Lines []int  `json:"lines,omitempty"`
}

// HistoryResponse is the body of GET /api/history
type HistoryResponse struct {
	Runs     []*types.RunRecord      `json:"runs"`
	Attempts []*types.AttemptRecord  `json:"attempts"`
	Analyses []*types.AnalysisRecord `json:"analyses"`
}

// HistoryQuery holds GET /api/history parameters
type HistoryQuery struct {
	Limit int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Unit  string `form:"unit"`
	RunID string `form:"run"`
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Checks   map[string]string `json:"checks"`
	Provider string            `json:"provider,omitempty"`
}

const healthTimeout = 10 * time.Second

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	unit := source.FromBytes(req.Name, source.ParseLanguage(req.Language), []byte(req.Content))
	if !unit.Language.Supported() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported language for " + req.Name})
		return
	}

	report, err := s.cfg.Analyzer.Analyze(c.Request.Context(), unit)
	var parseErr *types.ParseError
	switch {
	case errors.As(err, &parseErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: parseErr.Error(), Lines: parseErr.Lines})
		return
	case err != nil:
		s.logger.Error("analysis failed", "unit", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "analysis failed"})
		return
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveReport(report)
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history store not configured"})
		return
	}
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	ctx := c.Request.Context()
	filter := types.HistoryFilter{Unit: q.Unit, RunID: q.RunID, Limit: q.Limit}
	resp := HistoryResponse{
		Runs:     []*types.RunRecord{},
		Attempts: []*types.AttemptRecord{},
		Analyses: []*types.AnalysisRecord{},
	}

	runs, err := s.cfg.History.ListRuns(ctx, q.Limit)
	if err != nil {
		s.historyError(c, err)
		return
	}
	for _, r := range runs {
		if q.RunID == "" || r.ID == q.RunID {
			resp.Runs = append(resp.Runs, r)
		}
	}
	attempts, err := s.cfg.History.ListAttempts(ctx, filter)
	if err != nil {
		s.historyError(c, err)
		return
	}
	resp.Attempts = append(resp.Attempts, attempts...)
	analyses, err := s.cfg.History.ListAnalyses(ctx, filter)
	if err != nil {
		s.historyError(c, err)
		return
	}
	resp.Analyses = append(resp.Analyses, analyses...)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) historyError(c *gin.Context, err error) {
	s.logger.Error("history query failed", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "history query failed"})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Version: s.cfg.Version, Checks: map[string]string{}}
	if s.cfg.Store != nil {
		resp.Checks["store"] = checkResult(s.cfg.Store.Ping(ctx))
	}
	if s.cfg.Provider != nil {
		resp.Provider = s.cfg.Provider.Provider()
		resp.Checks["provider"] = checkResult(s.cfg.Provider.HealthCheck(ctx))
	}

	status := http.StatusOK
	for _, v := range resp.Checks {
		if v != "ok" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, resp)
}

func checkResult(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
