package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentscan/internal/notification"
	"agentscan/pkg/engine"
	"agentscan/pkg/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(msg notification.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func finished(status engine.TargetStatus, err error) *engine.TargetResult {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &engine.TargetResult{
		Site:       workflow.SiteConfig{Domain: "example.com", Description: "Main site"},
		Status:     status,
		Err:        err,
		TargetIP:   "93.184.216.34",
		SessionID:  "log-01-03-2026-10-00-00-abcd1234",
		ReportPath: "Scans/example.com/findings_report-log-01-03-2026-10-00-00-abcd1234.md",
		FinalState: workflow.StateReviewingReport,
		StartedAt:  start,
		FinishedAt: start.Add(95 * time.Second),
	}
}

func TestSummarize(t *testing.T) {
	done := Summarize(finished(engine.StatusDone, nil))
	assert.Equal(t, "Findings report approved", done.Title)
	assert.Equal(t, "success", done.Severity)
	assert.Contains(t, done.Description, "findings_report-")
	assert.Equal(t, "1m35s", done.Fields["duration"])
	assert.NotContains(t, done.Fields, "state")

	failed := Summarize(finished(engine.StatusFailed, errors.New("stage report_review failed")))
	assert.Equal(t, "high", failed.Severity)
	assert.Equal(t, "stage report_review failed", failed.Description)
	assert.Equal(t, "reviewing_report", failed.Fields["state"])
}

func TestNotifierHook(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.MatchedBy(func(m notification.Message) bool {
		return m.Title == "Assessment failed"
	})).Return(errors.New("discord down")).Once()
	sender.On("Send", mock.Anything).Return(nil)

	hook := NewNotifierHook(sender, NotifierHookConfig{})
	ctx := context.Background()

	hook.OnTargetStart(ctx, workflow.SiteConfig{Domain: "example.com"})
	hook.OnTargetFinished(ctx, finished(engine.StatusSkipped, errors.New("no such host")))
	hook.OnTargetFinished(ctx, finished(engine.StatusFailed, errors.New("boom")))
	hook.OnTargetFinished(ctx, finished(engine.StatusDone, nil))

	sender.AssertNumberOfCalls(t, "Send", 2)
	sender.AssertExpectations(t)
}

func TestNotifierHook_AllEvents(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(nil)

	hook := NewNotifierHook(sender, NotifierHookConfig{NotifyStart: true, NotifySkipped: true})
	var _ engine.Observer = hook

	ctx := context.Background()
	hook.OnTargetStart(ctx, workflow.SiteConfig{Domain: "example.com"})
	hook.OnTargetFinished(ctx, finished(engine.StatusSkipped, errors.New("no such host")))

	require.Len(t, sender.Calls, 2)
	assert.Equal(t, "Assessment started", sender.Calls[0].Arguments.Get(0).(notification.Message).Title)
	assert.Equal(t, "Target skipped", sender.Calls[1].Arguments.Get(0).(notification.Message).Title)
}
