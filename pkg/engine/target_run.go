package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "agentscan/pkg/errors"
	"agentscan/pkg/logger"
	"agentscan/pkg/workflow"

	"github.com/sirupsen/logrus"
)

// targetRun is the state of one target's workflow. It is owned by a single
// RunTarget call and never shared.
type targetRun struct {
	o           *Orchestrator
	sess        *workflow.Session
	description string
	findings    *workflow.FindingsLog
	log         *logger.Logger
	slog        *logger.SessionLogger

	state    workflow.State
	strategy workflow.Strategy
	planned  bool
	output   string
	report   string

	// feedback is only ever consumed by the stage that follows the
	// rejecting one
	strategyFeedback string
	reportFeedback   string

	strategyReviews int
	assessments     int
	reportReviews   int

	findingsPath string
	reportPath   string
}

func (o *Orchestrator) newTargetRun(sess *workflow.Session, description string) *targetRun {
	run := &targetRun{
		o:           o,
		sess:        sess,
		description: description,
		findings:    workflow.NewFindingsLog(o.now),
		log:         o.logger,
		state:       workflow.StatePlanning,
	}

	if o.sessionLogs {
		slog, err := logger.NewSessionLogger(sess.ID, sess.Dir, o.logLevel, o.console)
		if err != nil {
			o.logger.WithError(err).Warn("Session logger unavailable, using process logger")
		} else {
			run.slog = slog
			run.log = slog.Logger
		}
	}
	return run
}

func (r *targetRun) close() {
	if r.slog != nil {
		if err := r.slog.Close(); err != nil {
			r.o.logger.WithError(err).Warn("Failed to close session logger")
		}
	}
}

func (r *targetRun) entry() *logrus.Entry {
	return r.log.WithTarget(r.sess.Domain, r.sess.ID).WithField("state", r.state)
}

func (r *targetRun) execute(ctx context.Context) error {
	for !r.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, err := r.step(ctx)
		if err != nil {
			return err
		}
		if err := r.transition(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

func (r *targetRun) transition(ctx context.Context, next workflow.State) error {
	if err := workflow.ValidateTransition(r.state, next); err != nil {
		return err
	}
	from := r.state
	r.state = next
	r.entry().WithField("from", from).Debug("State transition")
	r.o.notifyStateChange(ctx, r.sess, from, next)
	return nil
}

func (r *targetRun) step(ctx context.Context) (workflow.State, error) {
	switch r.state {
	case workflow.StatePlanning:
		return r.plan(ctx)
	case workflow.StateReviewingStrategy:
		return r.reviewStrategy(ctx)
	case workflow.StateExecuting:
		return r.executeStrategy(ctx)
	case workflow.StateAssessingOutput:
		return r.assessOutput(ctx)
	case workflow.StateReporting:
		return r.generateReport(ctx)
	case workflow.StateReviewingReport:
		return r.reviewReport(ctx)
	default:
		return "", fmt.Errorf("no step for state %s", r.state)
	}
}

// call runs a collaborator and turns any failure into a contract error for
// that stage.
func (r *targetRun) call(stage string, fn func() error) error {
	err := r.log.LogStage(stage, logger.Fields{
		"domain":     r.sess.Domain,
		"session_id": r.sess.ID,
	}, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.NewContractError(stage, err)
}

func (r *targetRun) plan(ctx context.Context) (workflow.State, error) {
	req := workflow.StrategyRequest{
		TargetIP:    r.sess.TargetIP,
		Description: r.description,
		Parameters:  r.o.params.Clone(),
		Feedback:    r.strategyFeedback,
	}

	var strategy workflow.Strategy
	err := r.call(workflow.StageStrategy, func() error {
		var err error
		strategy, err = r.o.stages.Strategist.ProposeStrategy(ctx, req)
		if err != nil {
			return err
		}
		return strategy.Validate()
	})
	if err != nil {
		return "", err
	}

	r.strategy = strategy
	r.strategyFeedback = ""
	if r.planned {
		r.findings.Append(workflow.StrategyRevised(strategy))
		r.entry().Info("Updated strategy based on feedback")
	} else {
		r.findings.Append(workflow.StrategyProposed(strategy))
		r.entry().Info("Initial strategy proposed")
		r.planned = true
	}
	r.logOutput(workflow.StageStrategy, strings.Join(strategy.Commands, "\n"))
	return workflow.StateReviewingStrategy, nil
}

func (r *targetRun) reviewStrategy(ctx context.Context) (workflow.State, error) {
	r.strategyReviews++

	var verdict workflow.ReviewVerdict
	err := r.call(workflow.StageStrategyReview, func() error {
		var err error
		verdict, err = r.o.stages.StrategyReviewer.ReviewStrategy(ctx, workflow.StrategyReviewRequest{
			Strategy:    r.strategy,
			Description: r.description,
		})
		if err != nil {
			return err
		}
		return verdict.Validate()
	})
	if err != nil {
		return "", err
	}

	r.findings.Append(workflow.StrategyReviewed(verdict))
	if verdict.Approved {
		r.entry().Info("Strategy approved")
		return workflow.StateExecuting, nil
	}

	r.entry().WithField("feedback", verdict.Feedback).Info("Strategy rejected")
	if exhausted(r.o.limits.StrategyReviews, r.strategyReviews) {
		return "", apperrors.NewConvergenceError(workflow.StageStrategyReview, r.strategyReviews)
	}
	r.strategyFeedback = verdict.Feedback
	return workflow.StatePlanning, nil
}

func (r *targetRun) executeStrategy(ctx context.Context) (workflow.State, error) {
	commands := append([]string(nil), r.strategy.Commands...)

	var output string
	err := r.call(workflow.StageExecute, func() error {
		var err error
		output, err = r.o.stages.Executor.Execute(ctx, workflow.ExecutionRequest{
			Commands:    commands,
			TargetIP:    r.sess.TargetIP,
			Description: r.description,
			Parameters:  r.o.params.Clone(),
		})
		return err
	})
	if err != nil {
		return "", err
	}

	r.output = output
	r.findings.Append(workflow.CommandsExecuted(commands, output))
	r.logOutput(workflow.StageExecute, output)
	r.entry().WithField("commands", len(commands)).Info("Commands executed")
	return workflow.StateAssessingOutput, nil
}

func (r *targetRun) assessOutput(ctx context.Context) (workflow.State, error) {
	r.assessments++

	var verdict workflow.AssessmentVerdict
	err := r.call(workflow.StageAssessOutput, func() error {
		var err error
		verdict, err = r.o.stages.OutputAssessor.AssessOutput(ctx, workflow.AssessmentRequest{
			Output:      r.output,
			Description: r.description,
		})
		if err != nil {
			return err
		}
		return verdict.Validate()
	})
	if err != nil {
		return "", err
	}

	r.findings.Append(workflow.OutputAssessed(verdict))
	if verdict.Satisfactory {
		r.entry().Info("Scan completed, requirements have been met")
		path, err := r.o.store.PersistFindings(r.sess, r.findings)
		if err != nil {
			return "", err
		}
		r.findingsPath = path
		return workflow.StateReporting, nil
	}

	r.entry().WithField("feedback", verdict.Feedback).Info("Scan output unsatisfactory")
	if exhausted(r.o.limits.Assessments, r.assessments) {
		return "", apperrors.NewConvergenceError(workflow.StageAssessOutput, r.assessments)
	}
	r.strategyFeedback = verdict.Feedback
	return workflow.StatePlanning, nil
}

func (r *targetRun) generateReport(ctx context.Context) (workflow.State, error) {
	req := workflow.ReportRequest{
		TargetIP:     r.sess.TargetIP,
		Description:  r.description,
		FindingsPath: r.findingsPath,
		Feedback:     r.reportFeedback,
	}

	var report string
	err := r.call(workflow.StageReport, func() error {
		var err error
		report, err = r.o.stages.Reporter.GenerateReport(ctx, req)
		if err != nil {
			return err
		}
		if strings.TrimSpace(report) == "" {
			return fmt.Errorf("empty report")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	r.report = report
	r.reportFeedback = ""
	r.logOutput(workflow.StageReport, report)
	r.entry().Info("Findings report generated")
	return workflow.StateReviewingReport, nil
}

func (r *targetRun) reviewReport(ctx context.Context) (workflow.State, error) {
	r.reportReviews++

	var verdict workflow.ReviewVerdict
	err := r.call(workflow.StageReportReview, func() error {
		var err error
		verdict, err = r.o.stages.ReportReviewer.ReviewReport(ctx, workflow.ReportReviewRequest{
			Report: r.report,
		})
		if err != nil {
			return err
		}
		return verdict.Validate()
	})
	if err != nil {
		return "", err
	}

	r.findings.Append(workflow.ReportReviewed(verdict))
	if verdict.Approved {
		path, err := r.o.store.PersistReport(r.sess, r.report)
		if err != nil {
			return "", err
		}
		r.reportPath = path
		r.entry().Info("Findings report has been approved")
		return workflow.StateDone, nil
	}

	r.entry().WithField("feedback", verdict.Feedback).Info("Findings report rejected")
	if exhausted(r.o.limits.ReportReviews, r.reportReviews) {
		return "", apperrors.NewConvergenceError(workflow.StageReportReview, r.reportReviews)
	}
	r.reportFeedback = verdict.Feedback
	return workflow.StateReporting, nil
}

// salvageFindings persists what was accumulated before a failure, unless
// the findings artifact was already written or persistence itself failed.
func (r *targetRun) salvageFindings(cause error) {
	if r.findingsPath != "" || errors.Is(cause, apperrors.ErrPersistence) {
		return
	}
	path, err := r.o.store.PersistFindings(r.sess, r.findings)
	if err != nil {
		r.entry().WithError(err).Error("Failed to persist partial findings")
		return
	}
	r.findingsPath = path
	r.entry().WithField("findings", r.findings.Len()).Warn("Persisted partial findings")
}

func (r *targetRun) logOutput(stage, output string) {
	if r.slog != nil {
		r.slog.LogStageOutput(stage, output)
	}
}

func exhausted(limit, attempts int) bool {
	return limit > 0 && attempts >= limit
}
