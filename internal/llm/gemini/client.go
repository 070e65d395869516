// Package gemini implements llm.Invoker on top of the Google Generative AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
)

const provider = "gemini"

type Config struct {
	APIKey      string
	Model       string // e.g., "gemini-1.5-flash"
	Temperature float32
}

// generator is the slice of *genai.GenerativeModel we use.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg    Config
	client *genai.Client
	model  generator
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	m := client.GenerativeModel(cfg.Model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(cfg.Temperature)

	return &Client{cfg: cfg, client: client, model: m, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ llm.Invoker = (*Client)(nil)

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Invoke(ctx context.Context, p llm.Prompt) (string, error) {
	start := time.Now()

	// system instruction is sent inline so one model handle serves every prompt
	resp, err := c.model.GenerateContent(ctx, genai.Text(p.System), genai.Text(p.User))
	if err != nil {
		kind := classify(err)
		c.logger.Error("llm.gemini.call_failed",
			"kind", kind.String(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", &llm.CallError{Kind: kind, Provider: provider, StatusCode: statusCode(err), Err: err}
	}

	text := responseText(resp)
	if text == "" {
		return "", &llm.CallError{Kind: llm.KindTransient, Provider: provider, Err: llm.ErrEmptyResponse}
	}

	c.logger.Info("llm.gemini.ok",
		"model", c.cfg.Model,
		"content_chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func classify(err error) llm.ErrorKind {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return llm.KindPermanent
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return llm.ClassifyStatus(gerr.Code)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return llm.KindTransient
		default:
			return llm.KindPermanent
		}
	}
	return llm.ClassifyTransport(err)
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
