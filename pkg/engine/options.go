package engine

import (
	"io"
	"time"

	"agentscan/pkg/logger"
	"agentscan/pkg/resolver"
	"agentscan/pkg/workflow"

	"github.com/sirupsen/logrus"
)

// Limits caps each convergence loop. A value <= 0 leaves that loop unbounded.
type Limits struct {
	StrategyReviews int `mapstructure:"strategy_reviews"`
	Assessments     int `mapstructure:"assessments"`
	ReportReviews   int `mapstructure:"report_reviews"`
}

func DefaultLimits() Limits {
	return Limits{
		StrategyReviews: 10,
		Assessments:     5,
		ReportReviews:   5,
	}
}

// SessionStore is the persistence contract the orchestrator depends on.
type SessionStore interface {
	Open(domain, targetIP, description string, params workflow.ScanParameters) (*workflow.Session, error)
	PersistFindings(sess *workflow.Session, findings *workflow.FindingsLog) (string, error)
	PersistReport(sess *workflow.Session, text string) (string, error)
}

type OrchestratorOpts struct {
	resolver    resolver.Resolver
	store       SessionStore
	stages      workflow.Stages
	params      workflow.ScanParameters
	limits      Limits
	logger      *logger.Logger
	observers   []Observer
	now         func() time.Time
	sessionLogs bool
	console     io.Writer
	logLevel    logrus.Level
}

type OptFunc func(*OrchestratorOpts)

func WithResolver(r resolver.Resolver) OptFunc {
	return func(o *OrchestratorOpts) {
		o.resolver = r
	}
}

func WithStore(s SessionStore) OptFunc {
	return func(o *OrchestratorOpts) {
		o.store = s
	}
}

func WithStages(stages workflow.Stages) OptFunc {
	return func(o *OrchestratorOpts) {
		o.stages = stages
	}
}

func WithParameters(params workflow.ScanParameters) OptFunc {
	return func(o *OrchestratorOpts) {
		o.params = params.Clone()
	}
}

func WithLimits(limits Limits) OptFunc {
	return func(o *OrchestratorOpts) {
		o.limits = limits
	}
}

func WithLogger(l *logger.Logger) OptFunc {
	return func(o *OrchestratorOpts) {
		o.logger = l
		o.logLevel = l.GetLevel()
	}
}

func WithObserver(obs Observer) OptFunc {
	return func(o *OrchestratorOpts) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

func WithClock(now func() time.Time) OptFunc {
	return func(o *OrchestratorOpts) {
		o.now = now
	}
}

// WithSessionLogs controls whether each target gets workflow.log/error.log
// in its session directory, echoed to console.
func WithSessionLogs(enabled bool, console io.Writer) OptFunc {
	return func(o *OrchestratorOpts) {
		o.sessionLogs = enabled
		o.console = console
	}
}
