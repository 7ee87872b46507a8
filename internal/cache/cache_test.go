package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxquill/taxquill/internal/model"
)

func TestGetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	want := model.ClassificationResult{
		Category:      "Meals",
		ScheduleCLine: "24b",
		Confidence:    0.92,
		IsMeal:        true,
	}
	c.Set("key-1", want)

	got, ok := c.Get("key-1")
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, c.Size())
}

func TestSetOverwrites(t *testing.T) {
	c := New()
	c.Set("k", model.ClassificationResult{Category: "Meals"})
	c.Set("k", model.ClassificationResult{Category: "Travel"})

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "Travel", got.Category)
	assert.Equal(t, 1, c.Size())
}

func TestClear(t *testing.T) {
	c := New()
	c.Set("a", model.ClassificationResult{Category: "Meals"})
	c.Set("b", model.ClassificationResult{Category: "Travel"})
	c.Clear()

	assert.Equal(t, 0, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Set(fmt.Sprintf("key-%d", n%10), model.ClassificationResult{Category: "Supplies"})
		}(i)
		go func(n int) {
			defer wg.Done()
			c.Get(fmt.Sprintf("key-%d", n%10))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, c.Size())
}
