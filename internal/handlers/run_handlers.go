package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"agentscan/internal/models"
	"agentscan/internal/services"
	"agentscan/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type RunHandler struct {
	runService services.RunServiceMethods
	logger     *logger.Logger
}

func NewRunHandler(runService services.RunServiceMethods) *RunHandler {
	return &RunHandler{runService: runService, logger: logger.NewLogger(logrus.InfoLevel)}
}

// StartRun queues a workflow for one domain. The run executes in the
// background, so the response only carries its id.
func (h *RunHandler) StartRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	run := &models.Run{Domain: req.Domain, Description: req.Description}
	h.logger.WithFields(logger.Fields{"domain": run.Domain}).Info("Starting run")

	id, err := h.runService.StartRun(run)
	if errors.Is(err, services.ErrInvalidRun) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to start run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start run"})
		return
	}
	c.JSON(http.StatusAccepted, RunResponse{RunID: id})
}

// ListRuns returns the latest runs, or one page of them when ?page= is set.
func (h *RunHandler) ListRuns(c *gin.Context) {
	if pageParam := c.Query("page"); pageParam != "" {
		page, err := strconv.Atoi(pageParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		runs, total, err := h.runService.ListRunsPage(page, limit)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list runs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
			return
		}
		c.JSON(http.StatusOK, RunListResponse{Runs: runs, Total: total, Page: page})
		return
	}

	runs, err := h.runService.ListRuns()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, RunListResponse{Runs: runs, Total: int64(len(runs))})
}

func (h *RunHandler) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetReport serves the approved markdown report of a finished run.
func (h *RunHandler) GetReport(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	if run.ReportPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not available"})
		return
	}
	data, err := os.ReadFile(run.ReportPath)
	if err != nil {
		h.logger.WithFields(logger.Fields{"run_id": run.UUID, "path": run.ReportPath}).WithError(err).Error("Failed to read report")
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not available"})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
}

func (h *RunHandler) DeleteRun(c *gin.Context) {
	runID := c.Param("id")
	err := h.runService.DeleteRun(runID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
	case errors.Is(err, services.ErrRunActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Run is still in progress"})
	default:
		h.logger.WithFields(logger.Fields{"run_id": runID}).WithError(err).Error("Failed to delete run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete run"})
	}
}

func (h *RunHandler) lookup(c *gin.Context) (*models.Run, bool) {
	runID := c.Param("id")
	run, err := h.runService.GetRun(runID)
	if err != nil {
		h.logger.WithFields(logger.Fields{"run_id": runID}).WithError(err).Error("Failed to get run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return nil, false
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return nil, false
	}
	return run, true
}
