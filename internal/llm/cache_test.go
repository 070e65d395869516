package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
	"github.com/joseph-ayodele/receipt-analyzer/internal/llm/mocks"
)

type mapCache struct {
	mu     sync.Mutex
	m      map[string]string
	getErr error
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func TestCachingInvoker(t *testing.T) {
	p := llm.Prompt{System: "sys", User: "RECEIPT TEXT:\nTOTAL 3.00"}

	t.Run("second call is served from cache", func(t *testing.T) {
		inv := &mocks.MockInvoker{}
		inv.On("Model").Return("m1")
		inv.On("Invoke", mock.Anything, p).Return(`{"total":3}`, nil).Once()
		c := llm.NewCachingInvoker(inv, &mapCache{m: map[string]string{}}, nil)

		for i := 0; i < 2; i++ {
			got, err := c.Invoke(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, `{"total":3}`, got)
		}
		inv.AssertNumberOfCalls(t, "Invoke", 1)
	})

	t.Run("non JSON answers are not cached", func(t *testing.T) {
		inv := &mocks.MockInvoker{}
		inv.On("Model").Return("m1")
		inv.On("Invoke", mock.Anything, p).Return("no idea", nil).Twice()
		cache := &mapCache{m: map[string]string{}}
		c := llm.NewCachingInvoker(inv, cache, nil)

		_, _ = c.Invoke(context.Background(), p)
		_, _ = c.Invoke(context.Background(), p)
		assert.Empty(t, cache.m)
		inv.AssertNumberOfCalls(t, "Invoke", 2)
	})

	t.Run("truncated answers are not cached", func(t *testing.T) {
		truncated := `{"merchant":"Joe's Diner","total":9.50,"lineItems":[{"description":"Burger","lineTotal":9.50},{"descrip`
		inv := &mocks.MockInvoker{}
		inv.On("Model").Return("m1")
		inv.On("Invoke", mock.Anything, p).Return(truncated, nil).Twice()
		cache := &mapCache{m: map[string]string{}}
		c := llm.NewCachingInvoker(inv, cache, nil)

		_, _ = c.Invoke(context.Background(), p)
		_, _ = c.Invoke(context.Background(), p)
		assert.Empty(t, cache.m)
		inv.AssertNumberOfCalls(t, "Invoke", 2)
	})

	t.Run("cache failure falls through", func(t *testing.T) {
		inv := &mocks.MockInvoker{}
		inv.On("Model").Return("m1")
		inv.On("Invoke", mock.Anything, p).Return(`{"total":3}`, nil).Once()
		c := llm.NewCachingInvoker(inv, &mapCache{m: map[string]string{}, getErr: errors.New("redis down")}, nil)

		got, err := c.Invoke(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, `{"total":3}`, got)
	})

	t.Run("errors are passed through", func(t *testing.T) {
		inv := &mocks.MockInvoker{}
		inv.On("Model").Return("m1")
		callErr := &llm.CallError{Kind: llm.KindTransient, Err: errors.New("503")}
		inv.On("Invoke", mock.Anything, p).Return("", callErr).Once()
		c := llm.NewCachingInvoker(inv, &mapCache{m: map[string]string{}}, nil)

		_, err := c.Invoke(context.Background(), p)
		assert.ErrorIs(t, err, callErr)
	})
}

func TestCacheKey(t *testing.T) {
	p := llm.Prompt{System: "a", User: "b"}
	assert.Equal(t, llm.CacheKey("m", p), llm.CacheKey("m", p))
	assert.NotEqual(t, llm.CacheKey("m", p), llm.CacheKey("n", p))
	assert.NotEqual(t, llm.CacheKey("m", p), llm.CacheKey("m", llm.Prompt{System: "a", User: "c"}))
	assert.Len(t, llm.CacheKey("m", p), 64)
}
