// Package main is the entrypoint for the lifecycle-runner Lambda function.
//
// EventBridge rules invoke it hourly with a TaskPayload naming the task
// (trial_check or dunning). The handler acquires a distributed job lock so
// overlapping triggers don't double-run, records job history, and routes to
// the scheduler Runner.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"pawdesk/internal/config"
	"pawdesk/internal/db"
	"pawdesk/internal/queue"
	"pawdesk/internal/scheduler"
	"pawdesk/internal/types"
)

// TaskRunner is the subset of the scheduler Runner the handler calls.
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

// Handler holds the dependencies for the lifecycle-runner Lambda handler.
type Handler struct {
	Runner     TaskRunner
	JobLock    JobLocker
	JobHistory JobHistorian
	LockTTL    time.Duration
	WorkerID   string
	Logger     *slog.Logger
}

// Handle processes one TaskPayload:
//  1. Determine the reference time.
//  2. Acquire the job lock "task:YYYY-MM-DDTHH"; a held lock means another
//     invocation already runs this task for this hour.
//  3. Record job start, run the task, record the outcome.
func (h *Handler) Handle(ctx context.Context, payload scheduler.TaskPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	if payload.Task == "" {
		return "", fmt.Errorf("empty task in payload")
	}

	logger.InfoContext(ctx, "lifecycle runner invoked",
		"task", string(payload.Task),
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, h.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker, skipping",
			"lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	jobID, err := h.JobHistory.Start(ctx, payload.Task)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		// Non-fatal: jobID 0 means Finish is skipped.
		jobID = 0
	}

	stats, runErr := h.Runner.Run(ctx, payload.Task, now)

	status := "success"
	if runErr != nil {
		status = "failed"
	}
	if jobID != 0 {
		if finishErr := h.JobHistory.Finish(ctx, jobID, status, stats.Processed, runErr); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID, "error", finishErr)
		}
	}

	if runErr != nil {
		return "", fmt.Errorf("task %s failed: %w", payload.Task, runErr)
	}

	result := fmt.Sprintf("task %s complete: %d processed, %d transitioned, %d published, %d skipped, %d failed",
		payload.Task, stats.Processed, stats.Transitioned, stats.Published, stats.Skipped, stats.Failed)
	logger.InfoContext(ctx, result, "task", string(payload.Task))
	return result, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("lifecycle runner initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
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

	handler := &Handler{
		Runner:     runner,
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		LockTTL:    cfg.Scheduler.LockTTL,
		WorkerID:   uuid.New().String(),
		Logger:     logger,
	}

	logger.Info("lifecycle runner initialized",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"worker_id", handler.WorkerID,
	)

	// Local mode: read the payload from stdin instead of starting the Lambda
	// runtime. Usage: echo '{"task":"trial_check"}' | go run ./cmd/lifecycle-runner
	if cfg.Environment == "local" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		var payload scheduler.TaskPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			logger.Error("invalid payload", "error", err)
			os.Exit(1)
		}
		result, err := handler.Handle(ctx, payload)
		if err != nil {
			logger.Error("task failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(result)
		return
	}

	lambda.Start(handler.Handle)
}
