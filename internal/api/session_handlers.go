package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/service"
)

// addFilterRequest mirrors the producer criterion payload so filters built by
// hand and filters suggested from a query share one shape.
type addFilterRequest struct {
	Text             string                          `json:"text" binding:"required"`
	Kind             string                          `json:"type" binding:"required"`
	Entities         []string                        `json:"entities"`
	DBMappings       map[string]domain.EntityMapping `json:"db_mappings"`
	RevisedCriterion string                          `json:"revised_criterion"`
}

type processQueryRequest struct {
	Query     string `json:"query" binding:"required"`
	ProjectID string `json:"project_id"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	session := s.deps.Sessions.Create()
	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID(),
		"state":      session.State(),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.State())
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	s.deps.Sessions.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddFilter(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req addFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	filter, err := domain.NewFilter(req.Text, domain.FilterKind(req.Kind), req.Entities, req.DBMappings, req.RevisedCriterion)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session.AddFilter(filter))
}

func (s *Server) handleRemoveFilter(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.RemoveFilter(c.Param("filterID")))
}

func (s *Server) handleToggleFilter(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.ToggleFilter(c.Param("filterID")))
}

func (s *Server) handleClearFilters(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.ClearAll())
}

func (s *Server) handlePatientCount(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	snap := session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"cohort_id":     snap.CohortID,
		"patient_count": snap.PatientCount,
		"computed_at":   snap.ComputedAt,
	})
}

func (s *Server) handleDemographics(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	analytics := s.cohortAnalytics(c, session)
	c.JSON(http.StatusOK, analytics.Demographics)
}

func (s *Server) handleDiagnosisBreakdown(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	analytics := s.cohortAnalytics(c, session)
	c.JSON(http.StatusOK, gin.H{
		"patient_count":       analytics.PatientCount,
		"diagnosis_breakdown": analytics.DiagnosisBreakdown,
	})
}

// handleProcessQuery sends a natural-language query to the filter producer,
// adds every accepted filter to the session, and records the query.
func (s *Server) handleProcessQuery(c *gin.Context) {
	if s.deps.Producer == nil {
		s.unavailable(c, "filter producer is not configured")
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req processQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	result, err := s.deps.Producer.ProcessQuery(c.Request.Context(), req.Query, session.ID())
	if err != nil {
		s.logger.WithError(err).WithField("session_id", session.ID()).Error("Query processing failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "query processing failed", "code": domain.ErrProducerError})
		return
	}

	var state domain.CohortState
	for _, f := range result.Filters {
		state = session.AddFilter(f)
	}
	if len(result.Filters) == 0 {
		state = session.State()
	}

	if s.deps.History != nil {
		record := &domain.QueryRecord{
			ProjectID:        req.ProjectID,
			QueryText:        req.Query,
			Interpretation:   result.Interpretation,
			SuggestedFilters: len(result.Filters),
		}
		if err := s.deps.History.Record(c.Request.Context(), record); err != nil {
			s.logger.WithError(err).Warn("Failed to record query history")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"interpretation":   result.Interpretation,
		"accepted_filters": len(result.Filters),
		"rejected_filters": result.Rejected,
		"state":            state,
	})
}

// cohortAnalytics computes (or serves from cache) the full analytics for the
// session's current enabled-filter snapshot.
func (s *Server) cohortAnalytics(c *gin.Context, session *service.FilterSession) *domain.CohortAnalytics {
	snap := session.Snapshot()

	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(c.Request.Context(), snap.Fingerprint); ok {
			return cached
		}
	}

	analytics := s.deps.Engine.Analytics(snap)
	if s.deps.Cache != nil {
		s.deps.Cache.Set(c.Request.Context(), snap.Fingerprint, analytics)
	}
	return analytics
}

// session resolves the :id path parameter, creating the session on first use
// so clients can hold stable session IDs across restarts.
func (s *Server) session(c *gin.Context) (*service.FilterSession, bool) {
	id := c.Param("id")
	if id == "" {
		s.badRequest(c, "session id is required")
		return nil, false
	}
	return s.deps.Sessions.GetOrCreate(id), true
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": domain.ErrInvalidInput})
}

func (s *Server) unavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": message})
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": domain.ErrValidation})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": domain.ErrInternalServer})
	}
}
