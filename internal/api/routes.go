package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"image-bias-audit/backend/internal/audit"
	"image-bias-audit/backend/internal/consensus"
	"image-bias-audit/backend/internal/disparity"
	"image-bias-audit/backend/internal/judge"
	"image-bias-audit/backend/internal/review"
	"image-bias-audit/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath              string
	ManifestPath        string
	ExportPath          string
	AllowedOrigins      []string
	SilentDB            bool
	Judges              []judge.Judge
	ConfidenceThreshold float64
	SignificanceLevel   float64
}

// Server wires HTTP handlers with the ensemble pipeline and persistence.
type Server struct {
	db           *store.Database
	evaluator    *audit.Evaluator
	calc         *disparity.Calculator
	queue        *review.Writer
	notifier     *AuditNotifier
	manifestPath string
	exportPath   string

	allowedOrigins []string
	jobMu          sync.Mutex
	activeJob      *auditJob
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	if len(cfg.Judges) == 0 {
		return nil, errors.New("at least one judge required")
	}

	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = consensus.DefaultConfidenceThreshold
	}
	agg, err := consensus.NewAggregator(threshold)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}

	level := cfg.SignificanceLevel
	if level == 0 {
		level = disparity.DefaultSignificanceLevel
	}
	calc, err := disparity.NewCalculator(level)
	if err != nil {
		return nil, fmt.Errorf("disparity calculator: %w", err)
	}

	queue := review.NewWriter(db)
	evaluator, err := audit.NewEvaluator(cfg.Judges, agg, db, queue)
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}

	for _, j := range cfg.Judges {
		logrus.WithFields(logrus.Fields{
			"judge":   j.ID(),
			"weight":  j.Weight(),
			"enabled": j.Enabled(),
		}).Info("judge configured")
	}

	return &Server{
		db:             db,
		evaluator:      evaluator,
		calc:           calc,
		queue:          queue,
		notifier:       NewAuditNotifier(),
		manifestPath:   cfg.ManifestPath,
		exportPath:     cfg.ExportPath,
		allowedOrigins: cfg.AllowedOrigins,
	}, nil
}

// Close releases the review writer and database handles.
func (s *Server) Close() error {
	s.queue.Close()
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/audit", s.handleStartAudit)
		api.GET("/audit/status", s.handleAuditStatus)
		api.DELETE("/audit/:jobID", s.handleCancelAudit)
		api.GET("/audit/stream", s.handleAuditStream)
		api.GET("/evaluations", s.handleEvaluations)
		api.GET("/review-queue", s.handleReviewQueue)
		api.PATCH("/review-queue/:caseID", s.handleAdjudicate)
		api.GET("/review-queue/export", s.handleReviewExport)
		api.GET("/disparity", s.handleDisparity)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStartAudit(c *gin.Context) {
	var req AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	s.jobMu.Lock()
	job, err := s.startAudit(req)
	s.jobMu.Unlock()
	if err != nil {
		if strings.Contains(err.Error(), "already running") {
			s.renderError(c, http.StatusConflict, err)
		} else {
			s.renderError(c, http.StatusBadRequest, err)
		}
		return
	}

	c.JSON(http.StatusAccepted, StartAuditResponse{
		JobID:     job.id,
		Total:     job.total,
		StartedAt: job.startedAt,
	})
}

func (s *Server) handleCancelAudit(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobID"))
	if jobID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("job id required"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob == nil {
		s.renderError(c, http.StatusNotFound, errors.New("no audit running"))
		return
	}
	if s.activeJob.id != jobID {
		s.renderError(c, http.StatusNotFound, errors.New("job not found"))
		return
	}

	s.cancelAudit()
	logrus.WithField("job", jobID).Info("audit cancellation requested")
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) handleAuditStatus(c *gin.Context) {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	status := s.notifier.LastStatus()

	resp := AuditStatusResponse{Running: job != nil}
	if job != nil {
		resp.JobID = job.id
		resp.Total = job.total
	}
	if status != nil {
		resp.State = status.Type
		resp.Message = status.Message
		if status.Processed != 0 {
			resp.Processed = status.Processed
		}
		if status.Total != 0 {
			resp.Total = status.Total
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAuditStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("audit websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("audit websocket closed")
			} else {
				logrus.WithError(err).Warn("audit websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleEvaluations(c *gin.Context) {
	attributeType := strings.TrimSpace(c.Query("attribute_type"))

	records, err := s.db.ListEvaluations(attributeType)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	items := make([]EvaluationDTO, 0, len(records))
	for _, rec := range records {
		items = append(items, EvaluationFromModel(rec))
	}
	c.JSON(http.StatusOK, EvaluationsResponse{Items: items, Total: int64(len(items))})
}

func (s *Server) handleReviewQueue(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))

	rows, err := s.db.ListReviewItems(status)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	total, pending, err := s.db.CountReviewItems()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	items := make([]ReviewItemDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ReviewItemFromModel(row))
	}
	c.JSON(http.StatusOK, ReviewQueueResponse{Items: items, Total: total, Pending: pending})
}

func (s *Server) handleAdjudicate(c *gin.Context) {
	caseID := strings.TrimSpace(c.Param("caseID"))
	if caseID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("case id required"))
		return
	}

	var req AdjudicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	item, err := s.db.AdjudicateReviewItem(caseID, req.Status, req.Judgment, req.Reviewer, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.renderError(c, http.StatusNotFound, fmt.Errorf("case %s not found", caseID))
		case errors.Is(err, store.ErrReviewFinalized), errors.Is(err, store.ErrInvalidReviewStatus):
			s.renderError(c, http.StatusConflict, err)
		default:
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, ReviewItemFromModel(*item))
}

func (s *Server) handleReviewExport(c *gin.Context) {
	export, err := s.buildReviewExport()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, export)
}

func (s *Server) buildReviewExport() (review.Export, error) {
	records, err := s.db.ListEvaluations("")
	if err != nil {
		return review.Export{}, err
	}
	items, err := s.db.ListReviewItems("")
	if err != nil {
		return review.Export{}, err
	}
	return review.BuildExport(items, review.Analyze(records, items)), nil
}

// writeReviewExport snapshots the review queue to the configured export
// path after a run finishes.
func (s *Server) writeReviewExport() error {
	export, err := s.buildReviewExport()
	if err != nil {
		return err
	}
	return review.WriteExport(s.exportPath, export)
}

func (s *Server) handleDisparity(c *gin.Context) {
	rows, err := s.db.ListDisparities()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	resp := DisparityResponse{Results: make(map[string][]DisparityDTO)}
	byMetric := make(map[string][]disparity.Result)
	for _, row := range rows {
		resp.Results[row.MetricName] = append(resp.Results[row.MetricName], DisparityFromModel(row))
		byMetric[row.MetricName] = append(byMetric[row.MetricName], disparityResultFromModel(row))
	}
	resp.Summary = disparity.Summarize(
		disparity.Worst(byMetric["erasure_rate"]),
		disparity.Worst(byMetric["substitution_rate"]),
	)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
