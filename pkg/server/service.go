package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

const listLimit = 50

// JobStore persists research jobs and their logs. *database.PostgresDB implements it.
type JobStore interface {
	LogSink
	CreateJob(ctx context.Context, id uuid.UUID, topic string, config json.RawMessage) (*database.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error)
	ListJobs(ctx context.Context, limit int) ([]database.Job, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveJobState(ctx context.Context, id uuid.UUID, state json.RawMessage) error
	CompleteJob(ctx context.Context, id uuid.UUID, report string, sources json.RawMessage) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error)
}

// EngineFactory builds an engine for one run with run-specific options.
type EngineFactory func(opts ...research.Option) (*research.Engine, error)

type Service struct {
	Store     JobStore
	NewEngine EngineFactory
	Logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(store JobStore, newEngine EngineFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		Store:     store,
		NewEngine: newEngine,
		Logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

type CreateJobRequest struct {
	Topic string `json:"topic"`
	research.Overrides
}

func (r CreateJobRequest) validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return research.ErrEmptyTopic
	}
	return r.Overrides.Validate()
}

// CreateJob stores a pending job and starts researching it in the background.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*database.Job, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	configJSON, err := json.Marshal(req.Overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to encode overrides: %w", err)
	}

	job, err := s.Store.CreateJob(ctx, uuid.New(), strings.TrimSpace(req.Topic), configJSON)
	if err != nil {
		return nil, err
	}

	// Start background worker
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(job.ID, job.Topic, req.Overrides)
	}()

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	return s.Store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]database.Job, error) {
	return s.Store.ListJobs(ctx, listLimit)
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	if _, err := s.Store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.Store.GetJobLogs(ctx, jobID)
}

// Shutdown cancels running jobs and waits for their workers until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runWorker(jobID uuid.UUID, topic string, overrides research.Overrides) {
	ctx := s.ctx

	// Configure engine with DB logger
	dbLogger := slog.New(NewDBLogHandler(s.Store, jobID, s.Logger.Handler())).With("job_id", jobID.String())

	if err := s.Store.SetJobStatus(ctx, jobID, database.StatusRunning); err != nil {
		dbLogger.Error("Failed to mark job running", "error", err)
	}

	// Hook for state persistence
	onEvent := func(ev research.Event) {
		stateJSON, err := json.Marshal(ev)
		if err != nil {
			dbLogger.Error("Failed to marshal state", "error", err)
			return
		}
		if err := s.Store.SaveJobState(context.Background(), jobID, stateJSON); err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
	}

	engine, err := s.NewEngine(research.WithLogger(dbLogger), research.WithEventHandler(onEvent))
	if err != nil {
		s.failJob(dbLogger, jobID, fmt.Sprintf("Failed to init engine: %v", err))
		return
	}

	res, err := engine.Run(ctx, topic, overrides)
	if err != nil {
		reason := fmt.Sprintf("Research failed: %v", err)
		if errors.Is(err, context.Canceled) {
			reason = "Research canceled: server shutting down"
		}
		s.failJob(dbLogger, jobID, reason)
		return
	}

	sourcesJSON, err := json.Marshal(res.Sources)
	if err != nil {
		s.failJob(dbLogger, jobID, fmt.Sprintf("Failed to encode sources: %v", err))
		return
	}
	if err := s.Store.CompleteJob(context.Background(), jobID, res.Answer, sourcesJSON); err != nil {
		dbLogger.Error("Failed to save final report to DB", "error", err)
		return
	}
	dbLogger.Info("Research job completed", "loops", res.Loops, "sources", len(res.Sources))
}

func (s *Service) failJob(logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	if err := s.Store.FailJob(context.Background(), jobID, reason); err != nil {
		s.Logger.Error("Failed to mark job failed", "job_id", jobID, "error", err)
	}
}
