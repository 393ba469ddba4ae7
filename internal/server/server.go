// Package server exposes the reconciliation engine over HTTP. Synchronous
// endpoints run the pipeline inline and return counts; report endpoints
// create a job, hand the work to a dispatcher and return the job id
// immediately.
package server

import (
	"context"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"order-reconciliation-service/internal/jobs"
	"order-reconciliation-service/internal/models"
	apperrors "order-reconciliation-service/pkg/errors"
	"order-reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var storeCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("storecode", func(fl validator.FieldLevel) bool {
			return storeCodePattern.MatchString(fl.Field().String())
		})
	}
}

// JobStore is the job persistence surface the handlers need.
type JobStore interface {
	CreateJob(ctx context.Context, message string) (*models.ReconciliationJob, error)
	GetJob(ctx context.Context, id string) (*models.ReconciliationJob, error)
}

// Server wires the HTTP handlers to the engine, the job store and the task
// dispatcher.
type Server struct {
	pipeline   jobs.Pipeline
	jobStore   JobStore
	dispatcher jobs.Dispatcher
	reportDir  string
	log        logger.Logger
}

// New creates the HTTP server facade.
func New(pipeline jobs.Pipeline, jobStore JobStore, dispatcher jobs.Dispatcher, reportDir string, log logger.Logger) *Server {
	return &Server{
		pipeline:   pipeline,
		jobStore:   jobStore,
		dispatcher: dispatcher,
		reportDir:  reportDir,
		log:        log.WithComponent("server"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.health)

	api := router.Group("/api/reconciliation")
	{
		api.POST("/run", s.runPipeline)
		api.POST("/receivables", s.matchReceivables)
		api.POST("/reports", s.createReport)
		api.GET("/jobs/:id", s.jobStatus)
		api.GET("/reports/:id/download", s.downloadReport)
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).Round(time.Millisecond).String(),
		}).Info("request handled")
	}
}

type windowRequest struct {
	StartDate  string   `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate    string   `json:"end_date" binding:"required,datetime=2006-01-02"`
	StoreCodes []string `json:"store_codes" binding:"omitempty,dive,storecode"`
}

func (r *windowRequest) window() (models.ReconciliationWindow, error) {
	start, _ := time.Parse(dateLayout, r.StartDate)
	end, _ := time.Parse(dateLayout, r.EndDate)
	window := models.ReconciliationWindow{StartDate: start, EndDate: end, StoreCodes: r.StoreCodes}
	if err := window.Validate(); err != nil {
		return window, apperrors.ConfigError(apperrors.CodeInvalidConfig, err.Error())
	}
	return window, nil
}

type reportRequest struct {
	windowRequest
	RunPipeline bool `json:"run_pipeline"`
	Receivables bool `json:"receivables"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) runPipeline(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window, err := req.window()
	if err != nil {
		s.respondError(c, err)
		return
	}
	result, err := s.pipeline.Run(c.Request.Context(), window)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) matchReceivables(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window, err := req.window()
	if err != nil {
		s.respondError(c, err)
		return
	}
	result, err := s.pipeline.MatchReceivables(c.Request.Context(), window)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// createReport always answers 202 once the job row exists; any execution
// failure is only visible through the job status endpoint.
func (s *Server) createReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := req.window(); err != nil {
		s.respondError(c, err)
		return
	}

	job, err := s.jobStore.CreateJob(c.Request.Context(), "report requested")
	if err != nil {
		s.respondError(c, err)
		return
	}
	task := &jobs.Task{
		JobID:       job.ID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		StoreCodes:  req.StoreCodes,
		RunPipeline: req.RunPipeline,
		Receivables: req.Receivables,
	}
	if err := s.dispatcher.Dispatch(c.Request.Context(), task); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

func (s *Server) jobStatus(c *gin.Context) {
	job, err := s.jobStore.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":   job.ID,
		"status":   job.Status,
		"progress": job.Progress,
		"message":  job.Message,
		"filename": job.Filename,
		"error":    job.Error,
	})
}

func (s *Server) downloadReport(c *gin.Context) {
	job, err := s.jobStore.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if job.Status != models.JobCompleted || job.Filename == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "report not ready", "status": job.Status})
		return
	}
	c.FileAttachment(filepath.Join(s.reportDir, job.Filename), job.Filename)
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsCode(err, apperrors.CodeInvalidConfig), apperrors.IsCode(err, apperrors.CodeMissingConfig):
		status = http.StatusBadRequest
	case apperrors.IsCode(err, apperrors.CodeJobNotFound):
		status = http.StatusNotFound
	case apperrors.IsCode(err, apperrors.CodeRunLocked):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
