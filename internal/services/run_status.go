package services

import (
	"context"
	"sync"
	"time"

	"agentscan/internal/dao"
	"agentscan/internal/models"
	"agentscan/pkg/engine"
	"agentscan/pkg/logger"
	"agentscan/pkg/workflow"
)

// runTracker mirrors one workflow's progress into its run record.
type runTracker struct {
	engine.NopObserver

	runDao          dao.RunDAO
	logger          *logger.Logger
	monitorInterval time.Duration

	mu  sync.Mutex
	run *models.Run

	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

func newRunTracker(runDao dao.RunDAO, l *logger.Logger, run *models.Run, monitorInterval time.Duration) *runTracker {
	return &runTracker{
		runDao:          runDao,
		logger:          l,
		run:             run,
		monitorInterval: monitorInterval,
	}
}

func (t *runTracker) save() {
	if err := t.runDao.UpdateRun(t.run); err != nil {
		t.logger.WithFields(logger.Fields{"run_id": t.run.UUID}).WithError(err).Error("Failed to persist run")
	}
}

func (t *runTracker) markRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.Status = models.RunStatusRunning
	t.save()
}

func (t *runTracker) markFailed(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.Status = models.RunStatusFailed
	t.run.ErrorMessage = reason
	t.save()

	t.logger.WithFields(logger.Fields{
		"run_id": t.run.UUID,
		"reason": reason,
	}).Error("Run marked as failed")
}

func (t *runTracker) OnSessionOpened(ctx context.Context, sess *workflow.Session) {
	t.mu.Lock()
	t.run.TargetIP = sess.TargetIP
	t.run.SessionID = sess.ID
	t.run.SessionDir = sess.Dir
	t.run.State = string(workflow.StatePlanning)
	t.save()
	t.mu.Unlock()

	monitorCtx, cancel := context.WithCancel(ctx)
	t.stopMonitor = cancel
	t.monitorDone = make(chan struct{})
	monitor := NewArtifactMonitor(sess.Dir, sess.ID, t.monitorInterval, t.logger, t.artifactsChanged)
	go func() {
		defer close(t.monitorDone)
		monitor.Run(monitorCtx)
	}()
}

func (t *runTracker) OnStateChange(_ context.Context, _ *workflow.Session, _, to workflow.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.State = string(to)
	t.save()
}

func (t *runTracker) artifactsChanged(set ArtifactSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set.Count == t.run.Artifacts && set.FindingsPath == t.run.FindingsPath && set.ReportPath == t.run.ReportPath {
		return
	}
	t.run.Artifacts = set.Count
	if set.FindingsPath != "" {
		t.run.FindingsPath = set.FindingsPath
	}
	if set.ReportPath != "" {
		t.run.ReportPath = set.ReportPath
	}
	t.save()
}

func (t *runTracker) OnTargetFinished(_ context.Context, result *engine.TargetResult) {
	if t.stopMonitor != nil {
		t.stopMonitor()
		<-t.monitorDone
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch result.Status {
	case engine.StatusDone:
		t.run.Status = models.RunStatusDone
	case engine.StatusSkipped:
		t.run.Status = models.RunStatusSkipped
	default:
		t.run.Status = models.RunStatusFailed
	}
	if result.Err != nil {
		t.run.ErrorMessage = result.Err.Error()
	}
	if result.TargetIP != "" {
		t.run.TargetIP = result.TargetIP
	}
	if result.FinalState != "" {
		t.run.State = string(result.FinalState)
	}
	if result.FindingsPath != "" {
		t.run.FindingsPath = result.FindingsPath
	}
	if result.ReportPath != "" {
		t.run.ReportPath = result.ReportPath
	}
	t.save()

	t.logger.WithFields(logger.Fields{
		"run_id": t.run.UUID,
		"domain": t.run.Domain,
		"status": t.run.Status,
	}).Info("Run finished")
}
