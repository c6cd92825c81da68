package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/convo-eval/internal/compare"
	"github.com/stellarlinkco/convo-eval/internal/store"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(c.Request.Context(), store.RunFilter{
		Provider: strings.TrimSpace(c.Query("provider")),
		Model:    strings.TrimSpace(c.Query("model")),
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleModelHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.store.ModelHistory(c.Request.Context(), c.Param("provider"), c.Param("model"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

type compareRequest struct {
	RunA  string  `json:"run_a"`
	RunB  string  `json:"run_b"`
	Alpha float64 `json:"alpha,omitempty"`
}

func (s *Server) handleCompareRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.RunA) == "" || strings.TrimSpace(req.RunB) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_a and run_b are required"})
		return
	}

	a, err := s.loadSummary(c, req.RunA)
	if err != nil {
		return
	}
	b, err := s.loadSummary(c, req.RunB)
	if err != nil {
		return
	}

	alpha := req.Alpha
	if alpha <= 0 && s.config != nil {
		alpha = s.config.Comparison.Alpha
	}

	report, err := compare.Compare(a, b, alpha)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// loadSummary fetches a stored run's summary, writing the error response
// itself so handlers can bail on a non-nil error.
func (s *Server) loadSummary(c *gin.Context, runID string) (*summary.Summary, error) {
	run, err := s.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run " + runID + " not found"})
			return nil, err
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, err
	}
	return run.Summary, nil
}

func (s *Server) handleRank(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(c.Request.Context(), store.RunFilter{Limit: limit})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summaries := make([]*summary.Summary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, r.Summary)
	}

	weights := compare.DefaultWeights
	minSamples := 0
	if s.config != nil {
		if w := s.config.Comparison.Weights; w != nil {
			weights = compare.Weights{PassRate: w.PassRate, MeanScore: w.MeanScore, ErrorPenalty: w.ErrorPenalty}
		}
		minSamples = s.config.Comparison.MinSamples
	}

	c.JSON(http.StatusOK, gin.H{"ranking": compare.Rank(summaries, weights, minSamples)})
}
