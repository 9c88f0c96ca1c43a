// Package hooks holds observers that react to target lifecycle events.
package hooks

import (
	"context"
	"fmt"
	"time"

	"agentscan/internal/notification"
	"agentscan/pkg/engine"
	"agentscan/pkg/workflow"

	log "github.com/sirupsen/logrus"
)

// Sender delivers one notification.
type Sender interface {
	Send(msg notification.Message) error
}

type NotifierHookConfig struct {
	// NotifyStart also announces each target as it begins.
	NotifyStart bool
	// NotifySkipped reports targets that could not be resolved.
	NotifySkipped bool
}

// NotifierHook posts a message when a target finishes. Delivery failures
// are logged and never affect the run.
type NotifierHook struct {
	engine.NopObserver
	Config NotifierHookConfig
	sender Sender
}

func NewNotifierHook(sender Sender, config NotifierHookConfig) *NotifierHook {
	return &NotifierHook{Config: config, sender: sender}
}

func (n *NotifierHook) OnTargetStart(_ context.Context, site workflow.SiteConfig) {
	if !n.Config.NotifyStart {
		return
	}
	n.send(notification.Message{
		Title:       "Assessment started",
		Description: site.Description,
		Severity:    "info",
		Fields:      map[string]string{"domain": site.Domain},
	})
}

func (n *NotifierHook) OnTargetFinished(_ context.Context, result *engine.TargetResult) {
	if result.Status == engine.StatusSkipped && !n.Config.NotifySkipped {
		return
	}
	n.send(Summarize(result))
}

func (n *NotifierHook) send(msg notification.Message) {
	if n.sender == nil {
		return
	}
	if err := n.sender.Send(msg); err != nil {
		log.Errorf("Failed to send Discord notification: %v", err)
	}
}

// Summarize turns a target result into a notification.
func Summarize(result *engine.TargetResult) notification.Message {
	msg := notification.Message{
		Fields: map[string]string{
			"domain": result.Site.Domain,
			"status": string(result.Status),
		},
		Timestamp: result.FinishedAt,
	}
	if result.TargetIP != "" {
		msg.Fields["ip"] = result.TargetIP
	}
	if result.SessionID != "" {
		msg.Fields["session"] = result.SessionID
	}
	if !result.StartedAt.IsZero() && !result.FinishedAt.IsZero() {
		msg.Fields["duration"] = result.FinishedAt.Sub(result.StartedAt).Round(time.Second).String()
	}

	switch result.Status {
	case engine.StatusDone:
		msg.Title = "Findings report approved"
		msg.Severity = "success"
		msg.Description = fmt.Sprintf("Report saved to %s", result.ReportPath)
	case engine.StatusSkipped:
		msg.Title = "Target skipped"
		msg.Severity = "medium"
		msg.Description = errText(result.Err)
	default:
		msg.Title = "Assessment failed"
		msg.Severity = "high"
		msg.Description = errText(result.Err)
		if result.FinalState != "" {
			msg.Fields["state"] = string(result.FinalState)
		}
	}
	return msg
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
