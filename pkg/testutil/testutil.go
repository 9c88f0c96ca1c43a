// Package testutil provides testing utilities for agentscan
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agentscan/pkg/workflow"
)

// Script implements every collaborator role from canned responses. Each
// list is consumed in order; once exhausted the last element repeats.
type Script struct {
	mu sync.Mutex

	Strategies       []workflow.Strategy
	StrategyVerdicts []workflow.ReviewVerdict
	Outputs          []string
	Assessments      []workflow.AssessmentVerdict
	Reports          []string
	ReportVerdicts   []workflow.ReviewVerdict
	// Errors makes the named stage fail instead of answering.
	Errors map[string]error

	calls             []string
	strategyRequests  []workflow.StrategyRequest
	executionRequests []workflow.ExecutionRequest
	reportRequests    []workflow.ReportRequest
	counters          map[string]int
}

// Approving returns a script where every stage accepts on the first pass.
func Approving(output, report string) *Script {
	return &Script{
		Strategies:       []workflow.Strategy{{Commands: []string{"nmap -sV -p 80,443 {target}"}}},
		StrategyVerdicts: []workflow.ReviewVerdict{{Approved: true}},
		Outputs:          []string{output},
		Assessments:      []workflow.AssessmentVerdict{{Satisfactory: true}},
		Reports:          []string{report},
		ReportVerdicts:   []workflow.ReviewVerdict{{Approved: true}},
	}
}

func (s *Script) Stages() workflow.Stages {
	return workflow.Stages{
		Strategist:       s,
		StrategyReviewer: s,
		Executor:         s,
		OutputAssessor:   s,
		Reporter:         s,
		ReportReviewer:   s,
	}
}

func pick[T any](s *Script, stage string, items []T) T {
	if s.counters == nil {
		s.counters = make(map[string]int)
	}
	n := s.counters[stage]
	s.counters[stage] = n + 1

	var zero T
	if len(items) == 0 {
		return zero
	}
	if n >= len(items) {
		n = len(items) - 1
	}
	return items[n]
}

func (s *Script) record(stage string) error {
	s.calls = append(s.calls, stage)
	return s.Errors[stage]
}

func (s *Script) ProposeStrategy(_ context.Context, req workflow.StrategyRequest) (workflow.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategyRequests = append(s.strategyRequests, req)
	if err := s.record(workflow.StageStrategy); err != nil {
		return workflow.Strategy{}, err
	}
	return pick(s, workflow.StageStrategy, s.Strategies), nil
}

func (s *Script) ReviewStrategy(_ context.Context, _ workflow.StrategyReviewRequest) (workflow.ReviewVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(workflow.StageStrategyReview); err != nil {
		return workflow.ReviewVerdict{}, err
	}
	return pick(s, workflow.StageStrategyReview, s.StrategyVerdicts), nil
}

func (s *Script) Execute(_ context.Context, req workflow.ExecutionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionRequests = append(s.executionRequests, req)
	if err := s.record(workflow.StageExecute); err != nil {
		return "", err
	}
	return pick(s, workflow.StageExecute, s.Outputs), nil
}

func (s *Script) AssessOutput(_ context.Context, _ workflow.AssessmentRequest) (workflow.AssessmentVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(workflow.StageAssessOutput); err != nil {
		return workflow.AssessmentVerdict{}, err
	}
	return pick(s, workflow.StageAssessOutput, s.Assessments), nil
}

func (s *Script) GenerateReport(_ context.Context, req workflow.ReportRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportRequests = append(s.reportRequests, req)
	if err := s.record(workflow.StageReport); err != nil {
		return "", err
	}
	return pick(s, workflow.StageReport, s.Reports), nil
}

func (s *Script) ReviewReport(_ context.Context, _ workflow.ReportReviewRequest) (workflow.ReviewVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(workflow.StageReportReview); err != nil {
		return workflow.ReviewVerdict{}, err
	}
	return pick(s, workflow.StageReportReview, s.ReportVerdicts), nil
}

// Calls returns the stage names in invocation order.
func (s *Script) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Script) StrategyRequests() []workflow.StrategyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workflow.StrategyRequest(nil), s.strategyRequests...)
}

func (s *Script) ExecutionRequests() []workflow.ExecutionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workflow.ExecutionRequest(nil), s.executionRequests...)
}

func (s *Script) ReportRequests() []workflow.ReportRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workflow.ReportRequest(nil), s.reportRequests...)
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, filename)
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}

	return filePath
}

// WithTimeout creates a context with timeout for tests
func WithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx, cancel
}
