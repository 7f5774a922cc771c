package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/cohortstore"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

type projectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type saveCohortRequest struct {
	Name        string `json:"name" binding:"required"`
	SessionID   string `json:"session_id" binding:"required"`
	Description string `json:"description"`
}

// fieldMetadata is the wire shape for one filterable field.
type fieldMetadata struct {
	Name         string   `json:"name"`
	DataType     string   `json:"data_type"`
	Description  string   `json:"description,omitempty"`
	UniqueValues []string `json:"unique_values,omitempty"`
	IsEnumerable bool     `json:"is_enumerable"`
	IsNumeric    bool     `json:"is_numeric"`
	IsDate       bool     `json:"is_date"`
}

func (s *Server) handleListTables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": s.deps.Schema.TableNames()})
}

func (s *Server) handleFilterableFields(c *gin.Context) {
	table := c.Param("table")
	if s.deps.Schema.Table(table) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table: " + table})
		return
	}

	fields := s.deps.Schema.FilterableFields(table)
	out := make([]fieldMetadata, 0, len(fields))
	for _, nf := range fields {
		out = append(out, fieldMetadata{
			Name:         nf.Name,
			DataType:     nf.Field.DataType,
			Description:  nf.Field.Description,
			UniqueValues: s.deps.Schema.FieldUniqueValues(table, nf.Name),
			IsEnumerable: s.deps.Schema.IsEnumerable(table, nf.Name),
			IsNumeric:    s.deps.Schema.IsNumeric(table, nf.Name),
			IsDate:       s.deps.Schema.IsDate(table, nf.Name),
		})
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "fields": out})
}

func (s *Server) handleDateOperators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operators": domain.DateOperators})
}

func (s *Server) handleCreateProject(c *gin.Context) {
	if s.deps.Projects == nil {
		s.unavailable(c, "project storage is not configured")
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	project := &domain.CohortProject{Name: req.Name, Description: req.Description}
	if err := s.deps.Projects.Create(c.Request.Context(), project); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) handleListProjects(c *gin.Context) {
	if s.deps.Projects == nil {
		s.unavailable(c, "project storage is not configured")
		return
	}
	limit, offset := pagination(c)
	projects, err := s.deps.Projects.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "limit": limit, "offset": offset})
}

func (s *Server) handleGetProject(c *gin.Context) {
	if s.deps.Projects == nil {
		s.unavailable(c, "project storage is not configured")
		return
	}
	project, err := s.deps.Projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	if s.deps.Projects == nil {
		s.unavailable(c, "project storage is not configured")
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	project, err := s.deps.Projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	project.Name = req.Name
	project.Description = req.Description
	if err := s.deps.Projects.Update(c.Request.Context(), project); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	if s.deps.Projects == nil {
		s.unavailable(c, "project storage is not configured")
		return
	}
	if err := s.deps.Projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleProjectHistory(c *gin.Context) {
	if s.deps.History == nil {
		s.unavailable(c, "query history is not configured")
		return
	}
	limit, offset := pagination(c)
	records, err := s.deps.History.ListByProject(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records, "limit": limit, "offset": offset})
}

func (s *Server) handleRecentHistory(c *gin.Context) {
	if s.deps.History == nil {
		s.unavailable(c, "query history is not configured")
		return
	}
	limit, _ := pagination(c)
	records, err := s.deps.History.ListRecent(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

// handleSaveCohort snapshots a session's filter list under a stable name.
func (s *Server) handleSaveCohort(c *gin.Context) {
	if s.deps.Cohorts == nil {
		s.unavailable(c, "cohort storage is not configured")
		return
	}
	var req saveCohortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	session := s.deps.Sessions.Get(req.SessionID)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session: " + req.SessionID})
		return
	}

	state := session.State()
	cohort := &cohortstore.SavedCohort{
		Name:         req.Name,
		SessionID:    req.SessionID,
		Description:  req.Description,
		PatientCount: state.PatientCount,
		Filters:      state.Filters,
	}
	if err := s.deps.Cohorts.Save(c.Request.Context(), cohort); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cohort)
}

func (s *Server) handleListCohorts(c *gin.Context) {
	if s.deps.Cohorts == nil {
		s.unavailable(c, "cohort storage is not configured")
		return
	}
	limit, offset := pagination(c)
	cohorts, err := s.deps.Cohorts.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	total, err := s.deps.Cohorts.Count(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cohorts": cohorts, "total": total, "limit": limit, "offset": offset})
}

func (s *Server) handleGetCohort(c *gin.Context) {
	if s.deps.Cohorts == nil {
		s.unavailable(c, "cohort storage is not configured")
		return
	}
	cohort, err := s.deps.Cohorts.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if cohort == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cohort: " + c.Param("name")})
		return
	}
	c.JSON(http.StatusOK, cohort)
}

// handleDeleteCohort accepts either a numeric ID or a cohort name.
func (s *Server) handleDeleteCohort(c *gin.Context) {
	if s.deps.Cohorts == nil {
		s.unavailable(c, "cohort storage is not configured")
		return
	}
	key := c.Param("name")
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		cohort, getErr := s.deps.Cohorts.Get(c.Request.Context(), key)
		if getErr != nil {
			s.writeError(c, getErr)
			return
		}
		if cohort == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown cohort: " + key})
			return
		}
		id = cohort.ID
	}
	if err := s.deps.Cohorts.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExportCohorts(c *gin.Context) {
	if s.deps.Cohorts == nil {
		s.unavailable(c, "cohort storage is not configured")
		return
	}
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="cohorts.json"`)
	if err := s.deps.Cohorts.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Cohort export failed")
	}
}

func (s *Server) handleImportCohorts(c *gin.Context) {
	if s.deps.Cohorts == nil {
		s.unavailable(c, "cohort storage is not configured")
		return
	}
	imported, skipped, err := s.deps.Cohorts.ImportJSON(c.Request.Context(), c.Request.Body)
	if err != nil {
		s.badRequest(c, "invalid import payload: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "skipped": skipped})
}

// pagination reads limit/offset query parameters with sane bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
