package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Put(ctx context.Context, receiptID string, r entity.CanonicalReceipt) error {
	args := m.Called(ctx, receiptID, r)
	return args.Error(0)
}

func (m *MockRecordStore) Get(ctx context.Context, receiptID string) (entity.CanonicalReceipt, error) {
	args := m.Called(ctx, receiptID)
	return args.Get(0).(entity.CanonicalReceipt), args.Error(1)
}

func (m *MockRecordStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
