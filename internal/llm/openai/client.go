package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
)

const provider = "openai"

var _ llm.Invoker = (*Client)(nil)

func (c *Client) Model() string { return c.cfg.Model }

// Invoke implements llm.Invoker using text-only chat/completions in JSON mode.
func (c *Client) Invoke(ctx context.Context, p llm.Prompt) (string, error) {
	start := time.Now()

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": p.System},
			{"role": "user", "content": p.User},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		kind := llm.ClassifyTransport(err)
		if status > 0 {
			kind = llm.ClassifyStatus(status)
			err = fmt.Errorf("%w: %s", err, apiErrorMessage(raw))
		}
		c.logger.Error("llm.openai.http_error",
			"status", status,
			"kind", kind.String(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", &llm.CallError{Kind: kind, Provider: provider, StatusCode: status, Err: err}
	}

	var cc struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &llm.CallError{Kind: llm.KindPermanent, Provider: provider, StatusCode: status,
			Err: fmt.Errorf("decode openai response: %w", err)}
	}
	if len(cc.Choices) == 0 {
		return "", &llm.CallError{Kind: llm.KindTransient, Provider: provider, StatusCode: status,
			Err: errors.New("no choices in openai response")}
	}

	choice := cc.Choices[0]
	if choice.Message.Refusal != "" || choice.FinishReason == "content_filter" {
		c.logger.Warn("llm.openai.refused", "finish_reason", choice.FinishReason)
		return "", &llm.CallError{Kind: llm.KindPermanent, Provider: provider, StatusCode: status, Err: llm.ErrRefused}
	}

	c.logger.Info("llm.openai.ok",
		"model", c.cfg.Model,
		"finish_reason", choice.FinishReason,
		"content_chars", len(choice.Message.Content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return choice.Message.Content, nil
}

func apiErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return string(raw)
}
