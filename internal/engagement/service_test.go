package engagement

import (
	"context"
	"errors"
	"testing"

	"meridian/api/internal/likestate"
)

type fakeCounters struct {
	addViewsFn func(context.Context, string, int64) error
	addLikesFn func(context.Context, string, int64) error

	viewCalls []int64
	likeCalls []int64
}

func (f *fakeCounters) AddViews(ctx context.Context, insightID string, delta int64) error {
	f.viewCalls = append(f.viewCalls, delta)
	if f.addViewsFn != nil {
		return f.addViewsFn(ctx, insightID, delta)
	}
	return nil
}

func (f *fakeCounters) AddLikes(ctx context.Context, insightID string, delta int64) error {
	f.likeCalls = append(f.likeCalls, delta)
	if f.addLikesFn != nil {
		return f.addLikesFn(ctx, insightID, delta)
	}
	return nil
}

func TestToggleLikeFirstTime(t *testing.T) {
	counters := &fakeCounters{}
	svc := New(counters, likestate.NewMemoryStore())
	ctx := context.Background()

	result, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", 5)
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if result.Likes != 6 || !result.Liked {
		t.Errorf("expected likes=6 liked=true, got %+v", result)
	}
	if len(counters.likeCalls) != 1 || counters.likeCalls[0] != 1 {
		t.Errorf("expected one +1 delta, got %v", counters.likeCalls)
	}

	liked, err := svc.HasLiked(ctx, "client-1", "market-entry")
	if err != nil {
		t.Fatalf("HasLiked failed: %v", err)
	}
	if !liked {
		t.Error("expected liked set to contain market-entry")
	}
}

func TestToggleLikeTwiceReturnsToOriginal(t *testing.T) {
	counters := &fakeCounters{}
	svc := New(counters, likestate.NewMemoryStore())
	ctx := context.Background()

	first, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", 5)
	if err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	second, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", first.Likes)
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}

	if second.Likes != 5 || second.Liked {
		t.Errorf("expected likes=5 liked=false after double toggle, got %+v", second)
	}
	if len(counters.likeCalls) != 2 || counters.likeCalls[0] != 1 || counters.likeCalls[1] != -1 {
		t.Errorf("expected deltas [1 -1], got %v", counters.likeCalls)
	}

	liked, _ := svc.HasLiked(ctx, "client-1", "market-entry")
	if liked {
		t.Error("liked set should no longer contain market-entry")
	}
}

func TestToggleLikeRollbackOnRemoteFailure(t *testing.T) {
	counters := &fakeCounters{
		addLikesFn: func(context.Context, string, int64) error {
			return errors.New("store unreachable")
		},
	}
	svc := New(counters, likestate.NewMemoryStore())
	ctx := context.Background()

	result, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", 5)
	if err == nil {
		t.Fatal("expected error from failed remote delta")
	}
	if result.Likes != 5 || result.Liked {
		t.Errorf("expected pre-toggle state likes=5 liked=false, got %+v", result)
	}

	liked, _ := svc.HasLiked(ctx, "client-1", "market-entry")
	if liked {
		t.Error("liked set must be rolled back after a failed write")
	}
}

func TestToggleUnlikeRollbackOnRemoteFailure(t *testing.T) {
	counters := &fakeCounters{}
	likes := likestate.NewMemoryStore()
	svc := New(counters, likes)
	ctx := context.Background()

	if _, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", 5); err != nil {
		t.Fatalf("setup toggle failed: %v", err)
	}

	counters.addLikesFn = func(context.Context, string, int64) error {
		return errors.New("store unreachable")
	}
	result, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", 6)
	if err == nil {
		t.Fatal("expected error from failed remote delta")
	}
	if result.Likes != 6 || !result.Liked {
		t.Errorf("expected pre-toggle state likes=6 liked=true, got %+v", result)
	}

	liked, _ := svc.HasLiked(ctx, "client-1", "market-entry")
	if !liked {
		t.Error("liked membership must survive a failed unlike")
	}
}

func TestToggleLikeClampsAtZero(t *testing.T) {
	counters := &fakeCounters{}
	likes := likestate.NewMemoryStore()
	_ = likes.SaveLikedSlugs(context.Background(), "client-1", []string{"market-entry"})
	svc := New(counters, likes)

	result, err := svc.ToggleLike(context.Background(), "client-1", "market-entry", "ins_1", 0)
	if err != nil {
		t.Fatalf("ToggleLike failed: %v", err)
	}
	if result.Likes != 0 {
		t.Errorf("displayed likes must not go negative, got %d", result.Likes)
	}
}

func TestToggleLikeIsolatedPerClient(t *testing.T) {
	counters := &fakeCounters{}
	svc := New(counters, likestate.NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.ToggleLike(ctx, "client-1", "market-entry", "ins_1", 5); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}

	result, err := svc.ToggleLike(ctx, "client-2", "market-entry", "ins_1", 6)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !result.Liked || result.Likes != 7 {
		t.Errorf("second client should add its own like, got %+v", result)
	}
}

func TestRecordViewSendsUnitDelta(t *testing.T) {
	counters := &fakeCounters{}
	svc := New(counters, likestate.NewMemoryStore())

	svc.RecordView(context.Background(), "ins_1")
	svc.RecordView(context.Background(), "ins_1")

	if len(counters.viewCalls) != 2 {
		t.Fatalf("expected 2 view deltas, got %d", len(counters.viewCalls))
	}
	for _, delta := range counters.viewCalls {
		if delta != 1 {
			t.Errorf("expected +1 view delta, got %d", delta)
		}
	}
}

func TestRecordViewSwallowsFailure(t *testing.T) {
	counters := &fakeCounters{
		addViewsFn: func(context.Context, string, int64) error {
			return errors.New("store unreachable")
		},
	}
	svc := New(counters, likestate.NewMemoryStore())

	// Must not panic or surface the error.
	svc.RecordView(context.Background(), "ins_1")
}
