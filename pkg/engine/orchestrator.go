// pkg/engine/orchestrator.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	apperrors "agentscan/pkg/errors"
	"agentscan/pkg/logger"
	"agentscan/pkg/resolver"
	"agentscan/pkg/session"
	"agentscan/pkg/workflow"

	"github.com/sirupsen/logrus"
)

// Orchestrator drives the plan/review/execute/assess/report workflow for
// one target at a time.
type Orchestrator struct {
	OrchestratorOpts
}

func NewOrchestrator(opts ...OptFunc) (*Orchestrator, error) {
	o := OrchestratorOpts{
		resolver:    resolver.NewNetResolver(),
		store:       session.NewStore(session.DefaultRoot),
		params:      workflow.DefaultScanParameters(),
		limits:      DefaultLimits(),
		logger:      logger.Default(),
		now:         time.Now,
		sessionLogs: true,
		console:     os.Stdout,
		logLevel:    logrus.InfoLevel,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if missing := o.stages.Missing(); len(missing) > 0 {
		return nil, apperrors.NewConfigError("stages", strings.Join(missing, ","), "collaborator stages not configured")
	}
	if err := o.params.Validate(); err != nil {
		return nil, apperrors.WrapConfigError("scan_parameters", o.params, "invalid scan parameters", err)
	}
	if o.resolver == nil || o.store == nil {
		return nil, apperrors.NewConfigError("orchestrator", nil, "resolver and store are required")
	}

	o.logger.Debug("Orchestrator initialized")
	return &Orchestrator{OrchestratorOpts: o}, nil
}

// Parameters returns a copy of the scan parameters used for every target.
func (o *Orchestrator) Parameters() workflow.ScanParameters {
	return o.params.Clone()
}

// RunAll processes sites sequentially. Per-target failures are logged and
// recorded in the summary; only cancellation of ctx stops the run early.
func (o *Orchestrator) RunAll(ctx context.Context, sites []workflow.SiteConfig) RunSummary {
	summary := RunSummary{StartedAt: o.now()}

	for i, site := range sites {
		if err := ctx.Err(); err != nil {
			o.logger.WithError(err).Warn("Run cancelled, remaining targets not processed")
			break
		}

		o.logger.WithFields(logger.Fields{
			"domain": site.Domain,
			"index":  i + 1,
			"total":  len(sites),
		}).Info("Processing domain")

		result, err := o.RunTarget(ctx, site)
		if err != nil {
			entry := o.logger.WithFields(logger.Fields{
				"domain": site.Domain,
				"status": result.Status,
			}).WithError(err)
			if result.Status == StatusSkipped {
				entry.Warn("Skipping domain")
			} else {
				entry.Error("Domain processing aborted")
			}
		}
		summary.Results = append(summary.Results, *result)
	}

	summary.FinishedAt = o.now()
	done, skipped, failed := summary.Counts()
	o.logger.WithFields(logger.Fields{
		"done":    done,
		"skipped": skipped,
		"failed":  failed,
	}).Info("All domains processed")
	return summary
}

// RunTarget runs the full workflow for one site. The returned result is
// never nil; err is the cause when the target was skipped or failed.
func (o *Orchestrator) RunTarget(ctx context.Context, site workflow.SiteConfig) (*TargetResult, error) {
	result := &TargetResult{
		Site:      site,
		StartedAt: o.now(),
	}
	o.notifyStart(ctx, site)

	finish := func(status TargetStatus, err error) (*TargetResult, error) {
		result.Status = status
		result.Err = err
		result.FinishedAt = o.now()
		o.notifyFinished(ctx, result)
		return result, err
	}

	targetIP, err := o.resolver.Resolve(ctx, site.Domain)
	if err != nil {
		return finish(StatusSkipped, err)
	}
	result.TargetIP = targetIP
	o.logger.WithContext(ctx).WithFields(logrus.Fields{
		"domain": site.Domain,
		"ip":     targetIP,
	}).Info("Resolved IP")

	description := workflow.Describe(site, o.params)
	sess, err := o.store.Open(site.Domain, targetIP, description, o.params)
	if err != nil {
		return finish(StatusFailed, err)
	}
	result.SessionID = sess.ID
	result.SessionDir = sess.Dir
	result.SessionPath = sess.LogPath
	o.notifySessionOpened(ctx, sess)

	run := o.newTargetRun(sess, description)
	defer run.close()

	err = run.execute(ctx)

	result.FinalState = run.state
	result.Findings = run.findings.Entries()
	result.FindingsPath = run.findingsPath
	result.ReportPath = run.reportPath
	result.Report = run.report

	if err != nil {
		run.salvageFindings(err)
		result.FindingsPath = run.findingsPath
		if run.slog != nil {
			run.slog.LogTargetFailure(failureReason(err), err)
		}
		return finish(StatusFailed, fmt.Errorf("target %s: %w", site.Domain, err))
	}

	if run.slog != nil {
		run.slog.LogTargetSuccess(run.reportPath)
	}
	return finish(StatusDone, nil)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrConvergenceExhausted):
		return "convergence exhausted"
	case errors.Is(err, apperrors.ErrContract):
		return "collaborator contract violation"
	case errors.Is(err, apperrors.ErrPersistence):
		return "persistence failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "workflow error"
	}
}

func (o *Orchestrator) notifyStart(ctx context.Context, site workflow.SiteConfig) {
	for _, obs := range o.observers {
		obs.OnTargetStart(ctx, site)
	}
}

func (o *Orchestrator) notifySessionOpened(ctx context.Context, sess *workflow.Session) {
	for _, obs := range o.observers {
		obs.OnSessionOpened(ctx, sess)
	}
}

func (o *Orchestrator) notifyStateChange(ctx context.Context, sess *workflow.Session, from, to workflow.State) {
	for _, obs := range o.observers {
		obs.OnStateChange(ctx, sess, from, to)
	}
}

func (o *Orchestrator) notifyFinished(ctx context.Context, result *TargetResult) {
	for _, obs := range o.observers {
		obs.OnTargetFinished(ctx, result)
	}
}
