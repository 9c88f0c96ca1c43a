// Package agents implements the reasoning stages on top of an Azure OpenAI
// compatible chat-completions deployment.
package agents

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentscan/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAPIVersion   = "2024-02-15-preview"
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Content      string
	FinishReason string
}

// ChatClient is the one capability the agents need from a model backend.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// AzureConfig describes one deployment. MaxRetries of zero means
// DefaultMaxRetries; a negative value disables retries.
type AzureConfig struct {
	APIKey         string
	Endpoint       string
	DeploymentName string
	APIVersion     string
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

type AzureClient struct {
	deployment string
	client     *openai.Client
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	logger *logger.Logger
}

func WithClientLogger(l *logger.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = l
	}
}

func NewAzureClient(cfg AzureConfig, opts ...ClientOption) (*AzureClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid azure endpoint %q: %w", endpoint, err)
	}
	deployment := strings.TrimSpace(cfg.DeploymentName)
	if deployment == "" {
		return nil, fmt.Errorf("azure deployment name is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("azure api key is required")
	}

	o := &clientOptions{logger: logger.NewLogger(logrus.InfoLevel)}
	for _, opt := range opts {
		opt(o)
	}

	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = DefaultMaxRetries
	case retries < 0:
		retries = 0
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}

	oc := openai.DefaultAzureConfig(cfg.APIKey, endpoint)
	oc.APIVersion = version
	oc.AzureModelMapperFunc = func(string) string { return deployment }
	oc.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &retryTransport{
			base: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
			maxRetries: retries,
			backoff:    backoff,
			logger:     o.logger,
		},
	}

	return &AzureClient{
		deployment: deployment,
		client:     openai.NewClientWithConfig(oc),
	}, nil
}

func (c *AzureClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if len(req.Messages) == 0 {
		return ChatResponse{}, fmt.Errorf("chat requires at least one message")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.deployment,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("chat request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("response missing choices")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return ChatResponse{}, fmt.Errorf("response empty")
	}
	return ChatResponse{
		Content:      content,
		FinishReason: strings.TrimSpace(string(resp.Choices[0].FinishReason)),
	}, nil
}
