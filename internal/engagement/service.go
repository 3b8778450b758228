// Package engagement adjusts the view and like counters on an insight and
// reconciles them with the per-client liked-slug state.
package engagement

import (
	"context"
	"log"

	"meridian/api/internal/likestate"
)

// CounterStore applies atomic server-side deltas to insight counters.
type CounterStore interface {
	AddViews(ctx context.Context, insightID string, delta int64) error
	AddLikes(ctx context.Context, insightID string, delta int64) error
}

type Service struct {
	counters CounterStore
	likes    likestate.Store
}

func New(counters CounterStore, likes likestate.Store) *Service {
	return &Service{counters: counters, likes: likes}
}

// LikeResult is the state a viewer should see after a toggle.
type LikeResult struct {
	Likes int64 `json:"likes"`
	Liked bool  `json:"liked"`
}

// RecordView unconditionally increments the view counter. Repeat visits are
// not deduplicated. Failures are logged and never surfaced: the insight has
// already been fetched by the time a view is recorded.
func (s *Service) RecordView(ctx context.Context, insightID string) {
	if err := s.counters.AddViews(ctx, insightID, 1); err != nil {
		log.Printf("engagement: record view for %s: %v", insightID, err)
	}
}

// HasLiked reports whether the client has already liked the given slug.
func (s *Service) HasLiked(ctx context.Context, clientID, slug string) (bool, error) {
	slugs, err := s.likes.LikedSlugs(ctx, clientID)
	if err != nil {
		return false, err
	}
	return contains(slugs, slug), nil
}

// ToggleLike flips the client's like for one insight. The liked-slug set is
// updated before the remote delta is sent; if the delta fails, both the set
// membership and the returned count revert to their pre-toggle values, so a
// failed write never leaves the client's liked flag inconsistent with the
// last confirmed remote state.
//
// currentLikes is the like count the client is currently displaying; the
// returned count is that value adjusted by the toggle's delta.
func (s *Service) ToggleLike(ctx context.Context, clientID, slug, insightID string, currentLikes int64) (LikeResult, error) {
	slugs, err := s.likes.LikedSlugs(ctx, clientID)
	if err != nil {
		return LikeResult{Likes: currentLikes}, err
	}

	liked := contains(slugs, slug)
	before := LikeResult{Likes: currentLikes, Liked: liked}

	var delta int64
	var updated []string
	if liked {
		delta = -1
		updated = remove(slugs, slug)
	} else {
		delta = 1
		updated = append(append([]string{}, slugs...), slug)
	}

	// Optimistic: the client-local state changes first, the remote delta
	// follows.
	if err := s.likes.SaveLikedSlugs(ctx, clientID, updated); err != nil {
		return before, err
	}

	if err := s.counters.AddLikes(ctx, insightID, delta); err != nil {
		if revertErr := s.likes.SaveLikedSlugs(ctx, clientID, slugs); revertErr != nil {
			log.Printf("engagement: revert liked set for client %s: %v", clientID, revertErr)
		}
		return before, err
	}

	newLikes := currentLikes + delta
	if newLikes < 0 {
		newLikes = 0
	}
	return LikeResult{Likes: newLikes, Liked: !liked}, nil
}

func contains(slugs []string, slug string) bool {
	for _, s := range slugs {
		if s == slug {
			return true
		}
	}
	return false
}

func remove(slugs []string, slug string) []string {
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s != slug {
			out = append(out, s)
		}
	}
	return out
}
