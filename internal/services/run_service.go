package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"agentscan/internal/dao"
	"agentscan/internal/models"
	"agentscan/pkg/engine"
	"agentscan/pkg/logger"
	"agentscan/pkg/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrInvalidRun = errors.New("invalid run request")
	ErrRunActive  = errors.New("run is still in progress")
)

// Runner processes one target. *engine.Orchestrator satisfies it.
type Runner interface {
	RunTarget(ctx context.Context, site workflow.SiteConfig) (*engine.TargetResult, error)
}

// RunnerFactory builds a runner that reports to the given observers.
type RunnerFactory func(observers ...engine.Observer) (Runner, error)

type RunServiceMethods interface {
	StartRun(run *models.Run) (string, error)
	GetRun(id string) (*models.Run, error)
	ListRuns() ([]models.Run, error)
	ListRunsPage(page, limit int) ([]models.Run, int64, error)
	DeleteRun(id string) error
}

type RunService struct {
	ctx             context.Context
	runDao          dao.RunDAO
	factory         RunnerFactory
	queue           *engine.RunQueue
	logger          *logger.Logger
	monitorInterval time.Duration
	wg              sync.WaitGroup
}

type RunServiceOption func(*RunService)

func WithQueue(q *engine.RunQueue) RunServiceOption {
	return func(s *RunService) {
		s.queue = q
	}
}

func WithServiceLogger(l *logger.Logger) RunServiceOption {
	return func(s *RunService) {
		s.logger = l
	}
}

func WithMonitorInterval(d time.Duration) RunServiceOption {
	return func(s *RunService) {
		s.monitorInterval = d
	}
}

// NewRunService runs workflows in the background until ctx is cancelled.
// Runs go through a queue so only one workflow writes the scans tree at a
// time.
func NewRunService(ctx context.Context, runDao dao.RunDAO, factory RunnerFactory, opts ...RunServiceOption) *RunService {
	s := &RunService{
		ctx:             ctx,
		runDao:          runDao,
		factory:         factory,
		logger:          logger.NewLogger(logrus.InfoLevel),
		monitorInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queue == nil {
		s.queue = engine.GetGlobalQueue()
	}
	return s
}

func (s *RunService) StartRun(run *models.Run) (string, error) {
	run.Domain = strings.TrimSpace(run.Domain)
	if run.Domain == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidRun)
	}

	run.UUID = uuid.New().String()
	run.Status = models.RunStatusQueued

	if err := s.runDao.SaveRun(run); err != nil {
		s.logger.WithError(err).Error("SaveRun failed")
		return "", err
	}

	queued := *run
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logger.Fields{"run_id": queued.UUID, "panic": r}).Error("panic in background run")
			}
		}()
		_ = s.queue.ExecuteWithQueue(func() error {
			return s.execute(&queued)
		})
	}()

	return run.UUID, nil
}

func (s *RunService) execute(run *models.Run) error {
	tracker := newRunTracker(s.runDao, s.logger, run, s.monitorInterval)

	if err := s.ctx.Err(); err != nil {
		tracker.markFailed("server shutting down")
		return err
	}
	tracker.markRunning()

	runner, err := s.factory(tracker)
	if err != nil {
		tracker.markFailed(fmt.Sprintf("cannot build orchestrator: %v", err))
		return err
	}

	ctx := logger.ContextWithRunID(s.ctx, run.UUID)
	site := workflow.SiteConfig{Domain: run.Domain, Description: run.Description}
	_, err = runner.RunTarget(ctx, site)
	return err
}

// Wait blocks until every started run has finished.
func (s *RunService) Wait() {
	s.wg.Wait()
}

// GetRun returns nil without error when the run does not exist.
func (s *RunService) GetRun(id string) (*models.Run, error) {
	run, err := s.runDao.GetRunByUUID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs.
func (s *RunService) ListRuns() ([]models.Run, error) {
	return s.runDao.ListRuns()
}

func (s *RunService) ListRunsPage(page, limit int) ([]models.Run, int64, error) {
	return s.runDao.ListRunsWithPagination(page, limit)
}

func (s *RunService) DeleteRun(id string) error {
	run, err := s.runDao.GetRunByUUID(id)
	if err != nil {
		return err
	}
	if !run.Finished() {
		return ErrRunActive
	}
	return s.runDao.DeleteRun(id)
}

// RecoverInterrupted fails runs left queued or running by a previous
// process. Their workflows died with it.
func (s *RunService) RecoverInterrupted() (int, error) {
	recovered := 0
	for _, status := range []string{models.RunStatusQueued, models.RunStatusRunning} {
		runs, err := s.runDao.ListRunsByStatus(status)
		if err != nil {
			return recovered, err
		}
		for i := range runs {
			runs[i].Status = models.RunStatusFailed
			runs[i].ErrorMessage = "interrupted by server restart"
			if err := s.runDao.UpdateRun(&runs[i]); err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.WithField("runs", recovered).Warn("Marked interrupted runs as failed")
	}
	return recovered, nil
}
