// Package main is the entry point for the ops service.
//
// It exposes the operational surface of the notification subsystem over HTTP:
// a health check, manual task triggers (the same tasks EventBridge runs
// through the lifecycle-runner Lambda), and a gzip NDJSON export of the
// recent delivery log. Everything under /internal requires the admin API key.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"pawdesk/internal/config"
	"pawdesk/internal/db"
	"pawdesk/internal/queue"
	"pawdesk/internal/scheduler"
	"pawdesk/internal/types"
)

const exportDefaultLimit = 1000

// TaskRunner is the subset of the scheduler Runner the task endpoint calls.
type TaskRunner interface {
	Run(ctx context.Context, task types.TaskType, now time.Time) (scheduler.Stats, error)
}

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType types.TaskType) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// DeliveryLister reads back the recent delivery log for the export endpoint.
type DeliveryLister interface {
	ListRecent(ctx context.Context, limit int) ([]types.DeliveryRecord, error)
}

// Pinger verifies database connectivity for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the ops service dependencies and implements its routes.
type Server struct {
	DB         Pinger
	Runner     TaskRunner
	JobLock    JobLocker
	JobHistory JobHistorian
	Deliveries DeliveryLister
	AdminKey   types.SecretString
	LockTTL    time.Duration
	WorkerID   string
	Build      config.BuildInfo
	Logger     *slog.Logger
}

// Routes builds the chi router for the ops service.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/internal", func(r chi.Router) {
		r.Use(s.requireAdminKey)
		r.Post("/tasks/{task}", s.handleRunTask)
		r.Get("/deliveries/export", s.handleExportDeliveries)
	})

	return r
}

// requireAdminKey guards the /internal routes with the X-Admin-Key header.
func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if key == "" {
			s.writeError(w, types.NewAppError(types.ErrCodeAuthKeyMissing, "missing admin key", nil))
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.AdminKey.Unmask())) != 1 {
			s.writeError(w, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid admin key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.Ping(r.Context()); err != nil {
		s.Logger.ErrorContext(r.Context(), "health check failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.Build.Version,
		"commit":  s.Build.Commit,
	})
}

// handleRunTask manually triggers a lifecycle task. It goes through the same
// lock and history bookkeeping as the Lambda so a manual run and a scheduled
// run for the same hour cannot overlap.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	task := types.TaskType(chi.URLParam(r, "task"))

	var payload scheduler.TaskPayload
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, types.NewAppError(types.ErrCodeValidationInvalidTask,
				"invalid task payload", err))
			return
		}
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	lockID := fmt.Sprintf("%s:%s", task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := s.JobLock.Acquire(r.Context(), lockID, s.WorkerID, s.LockTTL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !acquired {
		s.writeError(w, types.NewAppError(types.ErrCodeConflictJobRunning,
			fmt.Sprintf("task %s already running for this hour", task), nil))
		return
	}

	jobID, err := s.JobHistory.Start(r.Context(), task)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "failed to start job history", "error", err)
		jobID = 0
	}

	stats, runErr := s.Runner.Run(r.Context(), task, now)

	status := "success"
	if runErr != nil {
		status = "failed"
	}
	if jobID != 0 {
		if err := s.JobHistory.Finish(r.Context(), jobID, status, stats.Processed, runErr); err != nil {
			s.Logger.ErrorContext(r.Context(), "failed to finish job history", "error", err)
		}
	}

	if runErr != nil {
		s.writeError(w, runErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"task":         string(task),
		"processed":    stats.Processed,
		"transitioned": stats.Transitioned,
		"published":    stats.Published,
		"skipped":      stats.Skipped,
		"failed":       stats.Failed,
	})
}

// handleExportDeliveries streams the recent delivery log as gzip-compressed
// NDJSON, newest first.
func (s *Server) handleExportDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := exportDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be a positive integer", err))
			return
		}
		limit = parsed
	}

	records, err := s.Deliveries.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="deliveries.ndjson.gz"`)

	gz := gzip.NewWriter(w)
	defer gz.Close()
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			// Headers are gone; all we can do is log and stop.
			s.Logger.ErrorContext(r.Context(), "delivery export aborted", "error", err)
			return
		}
	}
}

// writeError renders an AppError with its mapped status code. Unknown errors
// become opaque 500s.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "internal error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    string(appErr.Code),
			"message": appErr.Message,
		},
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("ops service starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	publisher := queue.NewIntentPublisher(sqsClient, cfg.AWS, types.RealClock{}, logger)
	runner := scheduler.NewRunner(
		db.NewTenantRepository(pool, logger),
		publisher,
		cfg.Scheduler,
		logger,
	)

	srv := &Server{
		DB:         pool,
		Runner:     runner,
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		Deliveries: db.NewDeliveryLogRepository(pool),
		AdminKey:   cfg.Server.AdminAPIKey,
		LockTTL:    cfg.Scheduler.LockTTL,
		WorkerID:   uuid.New().String(),
		Build:      cfg.Build,
		Logger:     logger,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	logger.Info("ops service stopped")
	return nil
}

// newLogger creates a structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
