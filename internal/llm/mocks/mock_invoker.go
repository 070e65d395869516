package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
)

type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, p llm.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockInvoker) Model() string {
	args := m.Called()
	return args.String(0)
}

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Extract(ctx context.Context, p llm.Prompt) (entity.ParsedReceipt, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(entity.ParsedReceipt), args.Error(1)
}
