package workflow

import "context"

// Stage names used in logs, contract errors and convergence errors.
const (
	StageStrategy       = "strategy"
	StageStrategyReview = "strategy_review"
	StageExecute        = "execute"
	StageAssessOutput   = "assess_output"
	StageReport         = "report"
	StageReportReview   = "report_review"
)

type StrategyRequest struct {
	TargetIP    string
	Description string
	Parameters  ScanParameters
	// Feedback is empty on the first pass and carries the rejecting stage's
	// feedback on every re-plan.
	Feedback string
}

type StrategyReviewRequest struct {
	Strategy    Strategy
	Description string
}

type ExecutionRequest struct {
	Commands    []string
	TargetIP    string
	Description string
	Parameters  ScanParameters
}

type AssessmentRequest struct {
	Output      string
	Description string
}

type ReportRequest struct {
	TargetIP     string
	Description  string
	FindingsPath string
	Feedback     string
}

type ReportReviewRequest struct {
	Report string
}

type Strategist interface {
	ProposeStrategy(ctx context.Context, req StrategyRequest) (Strategy, error)
}

type StrategyReviewer interface {
	ReviewStrategy(ctx context.Context, req StrategyReviewRequest) (ReviewVerdict, error)
}

type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (string, error)
}

type OutputAssessor interface {
	AssessOutput(ctx context.Context, req AssessmentRequest) (AssessmentVerdict, error)
}

type Reporter interface {
	GenerateReport(ctx context.Context, req ReportRequest) (string, error)
}

type ReportReviewer interface {
	ReviewReport(ctx context.Context, req ReportReviewRequest) (ReviewVerdict, error)
}

// Stages bundles one collaborator per role.
type Stages struct {
	Strategist       Strategist
	StrategyReviewer StrategyReviewer
	Executor         Executor
	OutputAssessor   OutputAssessor
	Reporter         Reporter
	ReportReviewer   ReportReviewer
}

// Missing returns the names of unset roles.
func (s Stages) Missing() []string {
	var missing []string
	if s.Strategist == nil {
		missing = append(missing, StageStrategy)
	}
	if s.StrategyReviewer == nil {
		missing = append(missing, StageStrategyReview)
	}
	if s.Executor == nil {
		missing = append(missing, StageExecute)
	}
	if s.OutputAssessor == nil {
		missing = append(missing, StageAssessOutput)
	}
	if s.Reporter == nil {
		missing = append(missing, StageReport)
	}
	if s.ReportReviewer == nil {
		missing = append(missing, StageReportReview)
	}
	return missing
}
