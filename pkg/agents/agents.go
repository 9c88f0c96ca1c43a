package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"agentscan/pkg/logger"
	"agentscan/pkg/workflow"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxOutputChars bounds how much raw scan output is put in a prompt.
	DefaultMaxOutputChars = 48000
	DefaultTemperature    = 0.2
)

// Team implements the five reasoning roles over one chat client.
type Team struct {
	client         ChatClient
	logger         *logger.Logger
	temperature    float32
	maxOutputChars int
}

type TeamOption func(*Team)

func WithTeamLogger(l *logger.Logger) TeamOption {
	return func(t *Team) {
		t.logger = l
	}
}

func WithTemperature(v float32) TeamOption {
	return func(t *Team) {
		t.temperature = v
	}
}

func WithMaxOutputChars(n int) TeamOption {
	return func(t *Team) {
		t.maxOutputChars = n
	}
}

func NewTeam(client ChatClient, opts ...TeamOption) *Team {
	t := &Team{
		client:         client,
		logger:         logger.NewLogger(logrus.InfoLevel),
		temperature:    DefaultTemperature,
		maxOutputChars: DefaultMaxOutputChars,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stages combines the team with a concrete executor.
func (t *Team) Stages(executor workflow.Executor) workflow.Stages {
	return workflow.Stages{
		Strategist:       t,
		StrategyReviewer: t,
		Executor:         executor,
		OutputAssessor:   t,
		Reporter:         t,
		ReportReviewer:   t,
	}
}

func (t *Team) ask(ctx context.Context, role, system string, payload any) (string, error) {
	var user string
	switch p := payload.(type) {
	case string:
		user = p
	default:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal %s payload: %w", role, err)
		}
		user = string(data)
	}

	resp, err := t.client.Chat(ctx, ChatRequest{
		Temperature: t.temperature,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s request: %w", role, err)
	}

	t.logger.WithFields(logger.Fields{
		"role":          role,
		"finish_reason": resp.FinishReason,
		"chars":         len(resp.Content),
	}).Debug("Model replied")
	return resp.Content, nil
}

func (t *Team) ProposeStrategy(ctx context.Context, req workflow.StrategyRequest) (workflow.Strategy, error) {
	payload := map[string]any{
		"target_ip":        req.TargetIP,
		"scan_description": req.Description,
		"scan_parameters":  req.Parameters,
	}
	if req.Feedback != "" {
		payload["feedback"] = req.Feedback
	}

	content, err := t.ask(ctx, "strategist", strategistPrompt, payload)
	if err != nil {
		return workflow.Strategy{}, err
	}

	var reply strategyReply
	if err := decodeReply(content, &reply); err != nil {
		return workflow.Strategy{}, fmt.Errorf("strategist: %w", err)
	}
	commands, err := reply.commands()
	if err != nil {
		return workflow.Strategy{}, fmt.Errorf("strategist: %w", err)
	}
	return workflow.Strategy{
		Commands:  commands,
		Rationale: strings.TrimSpace(reply.Rationale),
		Plan:      reply.Plan,
	}, nil
}

func (t *Team) ReviewStrategy(ctx context.Context, req workflow.StrategyReviewRequest) (workflow.ReviewVerdict, error) {
	content, err := t.ask(ctx, "strategy reviewer", strategyReviewerPrompt, map[string]any{
		"scan_description": req.Description,
		"strategy":         req.Strategy,
	})
	if err != nil {
		return workflow.ReviewVerdict{}, err
	}
	return decodeReview("strategy reviewer", content)
}

func (t *Team) AssessOutput(ctx context.Context, req workflow.AssessmentRequest) (workflow.AssessmentVerdict, error) {
	content, err := t.ask(ctx, "assessor", assessorPrompt, map[string]any{
		"scan_description": req.Description,
		"output":           truncate(req.Output, t.maxOutputChars),
	})
	if err != nil {
		return workflow.AssessmentVerdict{}, err
	}

	var reply assessmentReply
	if err := decodeReply(content, &reply); err != nil {
		return workflow.AssessmentVerdict{}, fmt.Errorf("assessor: %w", err)
	}
	if reply.Satisfactory == nil {
		return workflow.AssessmentVerdict{}, fmt.Errorf("assessor: reply has no satisfactory decision")
	}
	verdict := workflow.AssessmentVerdict{
		Satisfactory: bool(*reply.Satisfactory),
		Feedback:     strings.TrimSpace(reply.Feedback),
	}
	if verdict.Satisfactory {
		verdict.Feedback = ""
	}
	return verdict, nil
}

func (t *Team) GenerateReport(ctx context.Context, req workflow.ReportRequest) (string, error) {
	findings, err := os.ReadFile(req.FindingsPath)
	if err != nil {
		return "", fmt.Errorf("reporter: read findings: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Target IP: %s\n\nScan description:\n%s\n\nFindings log:\n%s\n",
		req.TargetIP, strings.TrimSpace(req.Description), truncate(string(findings), t.maxOutputChars))
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nReviewer feedback on the previous draft:\n%s\n", req.Feedback)
	}

	content, err := t.ask(ctx, "reporter", reporterPrompt, b.String())
	if err != nil {
		return "", err
	}
	return stripFence(content), nil
}

func (t *Team) ReviewReport(ctx context.Context, req workflow.ReportReviewRequest) (workflow.ReviewVerdict, error) {
	content, err := t.ask(ctx, "report reviewer", reportReviewerPrompt, req.Report)
	if err != nil {
		return workflow.ReviewVerdict{}, err
	}
	return decodeReview("report reviewer", content)
}

// decodeReview drops feedback on approval. A rejection without feedback is
// passed through so the workflow rejects it as malformed.
func decodeReview(role, content string) (workflow.ReviewVerdict, error) {
	var reply reviewReply
	if err := decodeReply(content, &reply); err != nil {
		return workflow.ReviewVerdict{}, fmt.Errorf("%s: %w", role, err)
	}
	approved, err := reply.approved()
	if err != nil {
		return workflow.ReviewVerdict{}, fmt.Errorf("%s: %w", role, err)
	}
	verdict := workflow.ReviewVerdict{Approved: approved, Feedback: strings.TrimSpace(reply.Feedback)}
	if verdict.Approved {
		verdict.Feedback = ""
	}
	return verdict, nil
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n[... %d characters truncated]", len(s)-cut)
}
