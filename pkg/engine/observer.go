package engine

import (
	"context"

	"agentscan/pkg/workflow"
)

// Observer is notified synchronously as targets move through the workflow.
type Observer interface {
	OnTargetStart(ctx context.Context, site workflow.SiteConfig)
	OnSessionOpened(ctx context.Context, sess *workflow.Session)
	OnStateChange(ctx context.Context, sess *workflow.Session, from, to workflow.State)
	OnTargetFinished(ctx context.Context, result *TargetResult)
}

// NopObserver can be embedded to implement only the callbacks of interest.
type NopObserver struct{}

func (NopObserver) OnTargetStart(context.Context, workflow.SiteConfig) {}
func (NopObserver) OnSessionOpened(context.Context, *workflow.Session) {}
func (NopObserver) OnStateChange(context.Context, *workflow.Session, workflow.State, workflow.State) {}
func (NopObserver) OnTargetFinished(context.Context, *TargetResult) {}
