package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(s)}},
	}}}
}

func TestInvoke(t *testing.T) {
	g := &fakeGenerator{resp: textResponse(`{"total":2}`)}
	c := &Client{cfg: Config{Model: "gemini-test"}, model: g, logger: newDiscardLogger()}

	got, err := c.Invoke(context.Background(), llm.Prompt{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, `{"total":2}`, got)
	assert.Equal(t, []genai.Part{genai.Text("sys"), genai.Text("usr")}, g.parts)
}

func TestInvoke_EmptyCandidate(t *testing.T) {
	c := &Client{cfg: Config{Model: "m"}, model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, logger: newDiscardLogger()}
	_, err := c.Invoke(context.Background(), llm.Prompt{})

	var ce *llm.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, llm.KindTransient, ce.Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want llm.ErrorKind
	}{
		{name: "googleapi 429", err: &googleapi.Error{Code: 429}, want: llm.KindTransient},
		{name: "googleapi 503 wrapped", err: fmt.Errorf("call: %w", &googleapi.Error{Code: 503}), want: llm.KindTransient},
		{name: "googleapi 400", err: &googleapi.Error{Code: 400}, want: llm.KindPermanent},
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "down"), want: llm.KindTransient},
		{name: "grpc invalid argument", err: status.Error(codes.InvalidArgument, "bad"), want: llm.KindPermanent},
		{name: "blocked", err: &genai.BlockedError{}, want: llm.KindPermanent},
		{name: "deadline", err: context.DeadlineExceeded, want: llm.KindTransient},
		{name: "other", err: errors.New("x"), want: llm.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
