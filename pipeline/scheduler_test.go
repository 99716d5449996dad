package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pevans/newscrawl/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	crawler := &fakeCrawler{result: createTestResult()}
	s := NewScheduler(New(Config{Crawler: crawler}), discovery.Query{Keyword: "finance"}, 10*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return crawler.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	for _, q := range crawler.queries {
		assert.Equal(t, "finance", q.Keyword)
	}
}

func TestScheduler_ContextCancel(t *testing.T) {
	crawler := &fakeCrawler{err: errors.New("unreachable")}
	s := NewScheduler(New(Config{Crawler: crawler}), discovery.Query{Keyword: "finance"}, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return crawler.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, crawler.count())
}
