package store

import "time"

type Insight struct {
	ID            string
	Slug          string
	Title         string
	Author        string
	Category      string
	Content       string
	FeaturedImage string
	Views         int64
	Likes         int64
	CreatedAt     time.Time
}

type Comment struct {
	ID        string
	InsightID string
	Author    string
	Text      string
	Approved  bool
	CreatedAt time.Time
	// Denormalized from the parent at submission time, for moderation-list
	// display only. The authoritative parent reference is InsightID.
	InsightTitle string
	InsightSlug  string
}

type Moderator struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
