package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"agentscan/pkg/logger"
	"agentscan/pkg/testutil"
	"agentscan/pkg/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedClient struct {
	replies  []string
	err      error
	requests []ChatRequest
}

func (c *cannedClient) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return ChatResponse{}, c.err
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return ChatResponse{Content: reply, FinishReason: "stop"}, nil
}

func newTeam(c ChatClient) *Team {
	return NewTeam(c, WithTeamLogger(logger.NewDiscardLogger()))
}

func TestAzureClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		assert.Equal(t, DefaultAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var body ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Messages, 1)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "pong"}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	client, err := NewAzureClient(AzureConfig{APIKey: "secret", Endpoint: server.URL + "/", DeploymentName: "gpt-4o"})
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "ping"}}})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestAzureClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"429","message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewAzureClient(AzureConfig{APIKey: "k", Endpoint: server.URL, DeploymentName: "d", MaxRetries: -1})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = client.Chat(context.Background(), ChatRequest{})
	assert.Error(t, err)
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func newRetryingClient(t *testing.T, url string, retries int) *AzureClient {
	t.Helper()
	client, err := NewAzureClient(AzureConfig{
		APIKey:         "k",
		Endpoint:       url,
		DeploymentName: "d",
		MaxRetries:     retries,
		RetryBackoff:   time.Millisecond,
	}, WithClientLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)
	return client
}

func TestAzureClientRetriesThrottledRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Messages, 1, "request body must be resent on retry")

		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, `{"error":{"code":"429","message":"rate limited"}}`, http.StatusTooManyRequests)
			return
		}
		chatReply(w, `{"approved": true}`)
	}))
	defer server.Close()

	team := newTeam(newRetryingClient(t, server.URL, 0))
	verdict, err := team.ReviewStrategy(context.Background(), workflow.StrategyReviewRequest{})
	require.NoError(t, err)
	assert.True(t, verdict.Approved)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAzureClientRetryLimits(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCalls int32
	}{
		{"server errors exhaust retries", http.StatusServiceUnavailable, 2, 3},
		{"client errors are not retried", http.StatusBadRequest, 2, 1},
		{"retries disabled", http.StatusTooManyRequests, -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
			}))
			defer server.Close()

			_, err := newRetryingClient(t, server.URL, tt.retries).
				Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), strconv.Itoa(tt.status))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestAzureClientRetryStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newRetryingClient(t, server.URL, 3).
		Chat(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryDelay(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		header  string
		attempt int
		want    time.Duration
	}{
		{"seconds", "2", 0, 2 * time.Second},
		{"http date", now.Add(5 * time.Second).Format(http.TimeFormat), 0, 5 * time.Second},
		{"date in the past", now.Add(-time.Hour).Format(http.TimeFormat), 0, 0},
		{"capped", "3600", 0, time.Minute},
		{"no header first retry", "", 0, time.Second},
		{"no header doubles", "", 2, 4 * time.Second},
		{"garbage falls back", "soon", 1, 2 * time.Second},
		{"backoff capped", "", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryDelay(tt.header, time.Second, tt.attempt, now))
		})
	}
}

func TestNewAzureClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  AzureConfig
	}{
		{"missing endpoint", AzureConfig{APIKey: "k", DeploymentName: "d"}},
		{"missing deployment", AzureConfig{APIKey: "k", Endpoint: "https://x.openai.azure.com"}},
		{"missing key", AzureConfig{Endpoint: "https://x.openai.azure.com", DeploymentName: "d"}},
		{"bad endpoint", AzureConfig{APIKey: "k", Endpoint: "not a url", DeploymentName: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAzureClient(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestProposeStrategy(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "commands list",
			reply: `{"commands": ["nmap -sV {target}", " "], "rationale": "baseline"}`,
			want:  []string{"nmap -sV {target}"},
		},
		{
			name:  "strategy list in a fence",
			reply: "Here you go:\n```json\n{\"strategy\": [\"nmap -p 80 10.0.0.1\", \"nikto -h 10.0.0.1\"]}\n```",
			want:  []string{"nmap -p 80 10.0.0.1", "nikto -h 10.0.0.1"},
		},
		{
			name:  "placeholder mentioned before the object",
			reply: "I used {target} for the address.\n{\"commands\": [\"nmap -p 80 {target}\"]}",
			want:  []string{"nmap -p 80 {target}"},
		},
		{
			name:  "strategy string",
			reply: `{"strategy": "nmap -p 22 10.0.0.1\nssh-audit 10.0.0.1"}`,
			want:  []string{"nmap -p 22 10.0.0.1", "ssh-audit 10.0.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &cannedClient{replies: []string{tt.reply}}
			strategy, err := newTeam(client).ProposeStrategy(context.Background(), workflow.StrategyRequest{
				TargetIP:   "10.0.0.1",
				Parameters: workflow.DefaultScanParameters(),
				Feedback:   "add port 8080",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, strategy.Commands)

			require.Len(t, client.requests, 1)
			assert.Equal(t, "system", client.requests[0].Messages[0].Role)
			assert.Contains(t, client.requests[0].Messages[1].Content, "add port 8080")
		})
	}
}

func TestProposeStrategy_Garbage(t *testing.T) {
	_, err := newTeam(&cannedClient{replies: []string{"I cannot help with that."}}).
		ProposeStrategy(context.Background(), workflow.StrategyRequest{})
	assert.Error(t, err)
}

func TestReviewVerdictNormalisation(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  workflow.ReviewVerdict
		err   bool
	}{
		{"approved drops feedback", `{"approved": true, "feedback": "looks fine"}`, workflow.ReviewVerdict{Approved: true}, false},
		{"rejected keeps feedback", `{"approved": false, "feedback": " add port 8080 "}`, workflow.ReviewVerdict{Feedback: "add port 8080"}, false},
		{"string boolean", `{"approved": "yes"}`, workflow.ReviewVerdict{Approved: true}, false},
		{"report approval key", `{"Report Approval": false, "feedback": "cite evidence"}`, workflow.ReviewVerdict{Feedback: "cite evidence"}, false},
		{"no decision", `{"feedback": "hmm"}`, workflow.ReviewVerdict{}, true},
		{"unreadable boolean", `{"approved": "maybe"}`, workflow.ReviewVerdict{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			team := newTeam(&cannedClient{replies: []string{tt.reply}})
			got, err := team.ReviewReport(context.Background(), workflow.ReportReviewRequest{Report: "# r"})
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRejectionWithoutFeedbackIsLeftForValidation(t *testing.T) {
	team := newTeam(&cannedClient{replies: []string{`{"approved": false}`}})
	verdict, err := team.ReviewStrategy(context.Background(), workflow.StrategyReviewRequest{})
	require.NoError(t, err)
	assert.Error(t, verdict.Validate())
}

func TestAssessOutput(t *testing.T) {
	client := &cannedClient{replies: []string{`{"satisfactory": false, "feedback": "port 22 timed out"}`}}
	team := NewTeam(client, WithTeamLogger(logger.NewDiscardLogger()), WithMaxOutputChars(10))

	verdict, err := team.AssessOutput(context.Background(), workflow.AssessmentRequest{Output: strings.Repeat("x", 100)})
	require.NoError(t, err)
	assert.Equal(t, workflow.AssessmentVerdict{Feedback: "port 22 timed out"}, verdict)
	assert.Contains(t, client.requests[0].Messages[1].Content, "90 characters truncated")
}

func TestGenerateReport(t *testing.T) {
	dir := t.TempDir()
	path := testutil.CreateTestFile(t, dir, "findings-x.json", `[{"kind":"commands_executed"}]`)
	client := &cannedClient{replies: []string{"```markdown\n# Report\n\nAll good.\n```"}}

	report, err := newTeam(client).GenerateReport(context.Background(), workflow.ReportRequest{
		TargetIP:     "10.0.0.1",
		FindingsPath: path,
		Feedback:     "add summary",
	})
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nAll good.", report)

	prompt := client.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "commands_executed")
	assert.Contains(t, prompt, "add summary")

	_, err = newTeam(client).GenerateReport(context.Background(), workflow.ReportRequest{
		FindingsPath: filepath.Join(dir, "missing.json"),
	})
	assert.Error(t, err)
}

func TestGenerateReportKeepsLeadingCodeBlock(t *testing.T) {
	path := testutil.CreateTestFile(t, t.TempDir(), "findings-x.json", `[]`)
	report := "```bash\nnmap -p 80 10.0.0.1\n```\n\nPort 80 is open."
	client := &cannedClient{replies: []string{report}}

	got, err := newTeam(client).GenerateReport(context.Background(), workflow.ReportRequest{FindingsPath: path})
	require.NoError(t, err)
	assert.Equal(t, report, got)
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single block", "```markdown\n# Report\n```", "# Report"},
		{"no language", "```\n# Report\n```\n", "# Report"},
		{"plain text", "# Report\n", "# Report"},
		{"two blocks", "```bash\nls\n```\ntext\n```\nmore\n```", "```bash\nls\n```\ntext\n```\nmore\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	out := truncate("ééé", 3)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasPrefix(out, "é\n"))
	assert.Contains(t, out, "4 characters truncated")

	assert.Equal(t, "abc", truncate("abc", 3))
}

func TestClientErrorPropagates(t *testing.T) {
	boom := errors.New("unavailable")
	_, err := newTeam(&cannedClient{err: boom}).AssessOutput(context.Background(), workflow.AssessmentRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestStagesWiresExecutor(t *testing.T) {
	script := testutil.Approving("", "")
	stages := newTeam(&cannedClient{replies: []string{"{}"}}).Stages(script)
	assert.Empty(t, stages.Missing())
	assert.Same(t, script, stages.Executor)
}
