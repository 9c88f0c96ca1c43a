package workflow

import (
	"encoding/json"
	"sync"
	"time"
)

type FindingKind string

const (
	KindStrategyProposed FindingKind = "strategy_proposed"
	KindStrategyReviewed FindingKind = "strategy_reviewed"
	KindCommandsExecuted FindingKind = "commands_executed"
	KindOutputAssessed   FindingKind = "output_assessed"
	KindStrategyRevised  FindingKind = "strategy_revised"
	KindReportReviewed   FindingKind = "report_reviewed"
)

// Finding is one immutable audit record. Exactly the payload fields of its
// Kind are set.
type Finding struct {
	Seq        int                `json:"seq"`
	Kind       FindingKind        `json:"kind"`
	RecordedAt time.Time          `json:"recorded_at"`
	Strategy   *Strategy          `json:"strategy,omitempty"`
	Review     *ReviewVerdict     `json:"review,omitempty"`
	Commands   []string           `json:"commands,omitempty"`
	Output     *string            `json:"output,omitempty"`
	Assessment *AssessmentVerdict `json:"assessment,omitempty"`
}

func StrategyProposed(s Strategy) Finding {
	return Finding{Kind: KindStrategyProposed, Strategy: &s}
}

func StrategyRevised(s Strategy) Finding {
	return Finding{Kind: KindStrategyRevised, Strategy: &s}
}

func StrategyReviewed(v ReviewVerdict) Finding {
	return Finding{Kind: KindStrategyReviewed, Review: &v}
}

func CommandsExecuted(commands []string, output string) Finding {
	return Finding{
		Kind:     KindCommandsExecuted,
		Commands: append([]string(nil), commands...),
		Output:   &output,
	}
}

func OutputAssessed(v AssessmentVerdict) Finding {
	return Finding{Kind: KindOutputAssessed, Assessment: &v}
}

func ReportReviewed(v ReviewVerdict) Finding {
	return Finding{Kind: KindReportReviewed, Review: &v}
}

// FindingsLog is the ordered, append-only audit trail of one target.
type FindingsLog struct {
	mu      sync.RWMutex
	entries []Finding
	now     func() time.Time
}

func NewFindingsLog(now func() time.Time) *FindingsLog {
	if now == nil {
		now = time.Now
	}
	return &FindingsLog{now: now}
}

// Append stamps f with the next sequence number and the current time and
// returns the stored copy.
func (l *FindingsLog) Append(f Finding) Finding {
	l.mu.Lock()
	defer l.mu.Unlock()

	f.Seq = len(l.entries) + 1
	f.RecordedAt = l.now().UTC()
	l.entries = append(l.entries, f)
	return f
}

func (l *FindingsLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a snapshot in emission order.
func (l *FindingsLog) Entries() []Finding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Finding, len(l.entries))
	copy(out, l.entries)
	return out
}

// Kinds returns the entry kinds in emission order.
func (l *FindingsLog) Kinds() []FindingKind {
	entries := l.Entries()
	kinds := make([]FindingKind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	return kinds
}

// MarshalJSON encodes the log as an indented array. Encoding is
// deterministic for an unchanged log.
func (l *FindingsLog) MarshalJSON() ([]byte, error) {
	entries := l.Entries()
	if entries == nil {
		entries = []Finding{}
	}
	return json.MarshalIndent(entries, "", "  ")
}
