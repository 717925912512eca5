package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGroups struct {
	sizes      map[int]int
	alwaysFail map[int]bool
	calls      []int
}

func (f *fakeGroups) FetchGroup(_ context.Context, group int) ([]extractor.Node, error) {
	f.calls = append(f.calls, group)
	if f.alwaysFail[group] {
		return nil, errors.New("502 bad gateway")
	}
	var out []extractor.Node
	for i := 0; i < f.sizes[group]; i++ {
		out = append(out, &entry{id: fmt.Sprintf("g%d-%d", group, i), valid: true})
	}
	return out, nil
}

func groupPager(src *fakeGroups, last int, limiter Limiter) *GroupPager {
	return NewGroupPager(src, GroupPagerConfig{First: 1, Last: last, Retry: fastRetry(), Limiter: limiter}, nil)
}

func TestGroupPager_AllGroups(t *testing.T) {
	src := &fakeGroups{sizes: map[int]int{1: 3, 2: 0, 3: 2, 4: 1}}
	limiter := &recordingLimiter{}
	ex := &fakeExtractor{}

	res := NewLoop(ex, Options{Target: 100}, nil).Run(context.Background(), groupPager(src, 4, limiter))

	assert.Equal(t, models.StopExhausted, res.StopReason)
	assert.Equal(t, 6, res.Kept)
	assert.Equal(t, 6, res.NextOffset)
	assert.Equal(t, 4, res.Rounds)
	assert.Equal(t, []int{1, 2, 3, 4}, src.calls)
	assert.Equal(t, []string{"g1-0", "g1-1", "g1-2", "g3-0", "g3-1", "g4-0"}, ex.seen)
	assert.Equal(t, 3, limiter.waits)
	assert.Equal(t, 4, limiter.successes)
}

func TestGroupPager_ResumeInsideGroup(t *testing.T) {
	src := &fakeGroups{sizes: map[int]int{1: 3, 2: 0, 3: 2, 4: 1}}
	ex := &fakeExtractor{}

	res := NewLoop(ex, Options{StartOffset: 4}, nil).Run(context.Background(), groupPager(src, 4, nil))

	assert.Equal(t, []string{"g3-1", "g4-0"}, ex.seen)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 6, res.NextOffset)
	assert.Equal(t, []int{1, 2, 3, 4}, src.calls)
}

func TestGroupPager_TargetThenResumeHasNoGapOrOverlap(t *testing.T) {
	sizes := map[int]int{1: 3, 2: 3, 3: 3}
	first := &fakeExtractor{}
	res := NewLoop(first, Options{Target: 4}, nil).Run(context.Background(), groupPager(&fakeGroups{sizes: sizes}, 3, nil))
	require.Equal(t, models.StopTarget, res.StopReason)
	assert.Equal(t, 4, res.NextOffset)

	second := &fakeExtractor{}
	NewLoop(second, Options{StartOffset: res.NextOffset}, nil).Run(context.Background(), groupPager(&fakeGroups{sizes: sizes}, 3, nil))

	all := append(first.seen, second.seen...)
	assert.Equal(t, []string{"g1-0", "g1-1", "g1-2", "g2-0", "g2-1", "g2-2", "g3-0", "g3-1", "g3-2"}, all)
}

func TestGroupPager_FailedGroupSkipped(t *testing.T) {
	src := &fakeGroups{sizes: map[int]int{1: 1, 2: 2, 3: 1}, alwaysFail: map[int]bool{2: true}}
	limiter := &recordingLimiter{}

	res := NewLoop(&fakeExtractor{}, Options{}, nil).Run(context.Background(), groupPager(src, 3, limiter))

	assert.Equal(t, models.StopExhausted, res.StopReason)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 1, res.FailedPages)
	assert.Equal(t, 1, limiter.errors)
	assert.Equal(t, []int{1, 2, 2, 2, 3}, src.calls)
}

func TestGroupPager_GivesUpAfterConsecutiveFailures(t *testing.T) {
	src := &fakeGroups{
		sizes:      map[int]int{1: 1, 5: 1},
		alwaysFail: map[int]bool{2: true, 3: true, 4: true},
	}
	pager := NewGroupPager(src, GroupPagerConfig{First: 1, Last: 5, Retry: RetryPolicy{MaxAttempts: 1}, MaxFailedPages: 2}, nil)

	res := NewLoop(&fakeExtractor{}, Options{}, nil).Run(context.Background(), pager)

	assert.Equal(t, models.StopExhausted, res.StopReason)
	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 2, res.FailedPages)
	assert.Equal(t, []int{1, 2, 3}, src.calls)
}
