package engine

import (
	"time"

	"agentscan/pkg/workflow"
)

type TargetStatus string

const (
	StatusDone    TargetStatus = "done"
	StatusSkipped TargetStatus = "skipped"
	StatusFailed  TargetStatus = "failed"
)

// TargetResult describes how one target's run ended.
type TargetResult struct {
	Site         workflow.SiteConfig
	Status       TargetStatus
	Err          error
	TargetIP     string
	SessionID    string
	SessionDir   string
	SessionPath  string
	FindingsPath string
	ReportPath   string
	Report       string
	FinalState   workflow.State
	// Findings is the full in-memory log, including report review entries
	// appended after the findings artifact was written.
	Findings   []workflow.Finding
	StartedAt  time.Time
	FinishedAt time.Time
}

type RunSummary struct {
	Results    []TargetResult
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s RunSummary) Counts() (done, skipped, failed int) {
	for _, r := range s.Results {
		switch r.Status {
		case StatusDone:
			done++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return done, skipped, failed
}
