package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, data []byte, contentType string) ([]string, error) {
	args := m.Called(ctx, data, contentType)
	lines, _ := args.Get(0).([]string)
	return lines, args.Error(1)
}
