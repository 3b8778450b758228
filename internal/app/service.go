package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"meridian/api/internal/auth"
	"meridian/api/internal/authpw"
	"meridian/api/internal/config"
	"meridian/api/internal/email"
	"meridian/api/internal/engagement"
	"meridian/api/internal/live"
	"meridian/api/internal/media"
	"meridian/api/internal/rbac"
	"meridian/api/internal/search"
	"meridian/api/internal/store"
	"meridian/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	ModeratorID  string
	Email        string
	DisplayName  string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type SubmitCommentInput struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type dataStore interface {
	ListInsights(context.Context) ([]store.Insight, error)
	GetInsightBySlug(context.Context, string) (store.Insight, error)
	GetInsight(context.Context, string) (store.Insight, error)
	InsertInsight(context.Context, store.Insight) error
	AddViews(context.Context, string, int64) error
	AddLikes(context.Context, string, int64) error
	InsertComment(context.Context, store.Comment) error
	ListApprovedComments(context.Context, string) ([]store.Comment, error)
	ListAllComments(context.Context) ([]store.Comment, error)
	ApprovedCommentCount(context.Context, string) (int, error)
	SetCommentApproved(context.Context, string, string, bool) (bool, error)
	DeleteComment(context.Context, string, string) (bool, error)
	GetModeratorByEmail(context.Context, string) (store.Moderator, error)
	GetModeratorByID(context.Context, string) (store.Moderator, error)
	CreateModerator(context.Context, store.Moderator) error
	UpdateModeratorPassword(context.Context, string, string) error
	ModeratorCount(context.Context) (int, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Moderator, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(ctx context.Context) error
}

// RefreshSessionStore keeps moderator refresh tokens in Redis. When nil, the
// service falls back to the refresh_sessions table in Postgres.
type RefreshSessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, moderator store.Moderator, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Moderator, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type insightSearch interface {
	Search(q search.Query) search.Response
	IndexInsight(record search.InsightRecord)
	IndexInsights(records []search.InsightRecord)
}

type imageResolver interface {
	ImageURL(ctx context.Context, objectKey, slug string) string
}

type notifier interface {
	IsConfigured() bool
	SendCommentNotification(to string, data email.CommentNotificationData) error
}

type pendingDeleteRecord struct {
	token     string
	expiresAt time.Time
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   RefreshSessionStore
	engagement *engagement.Service
	hub        *live.Hub
	search     insightSearch
	media      imageResolver
	email      notifier
	auth       *authpw.Service
	redisPing  func(context.Context) error

	deleteConfirmTTL time.Duration
	deleteMu         sync.Mutex
	pendingDeletes   map[string]pendingDeleteRecord
}

// Dependencies bundles the collaborating services wired up in main.
type Dependencies struct {
	Sessions   RefreshSessionStore
	Engagement *engagement.Service
	Hub        *live.Hub
	Search     *search.Service
	Media      *media.Service
	Email      *email.Service
	Auth       *authpw.Service
	RedisPing  func(context.Context) error
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) *Service {
	return &Service{
		cfg:              cfg,
		store:            dataStore,
		sessions:         deps.Sessions,
		engagement:       deps.Engagement,
		hub:              deps.Hub,
		search:           deps.Search,
		media:            deps.Media,
		email:            deps.Email,
		auth:             deps.Auth,
		redisPing:        deps.RedisPing,
		deleteConfirmTTL: 2 * time.Minute,
		pendingDeletes:   make(map[string]pendingDeleteRecord),
	}
}

func (s *Service) Bootstrap(ctx context.Context) error {
	if s.auth != nil {
		if err := s.auth.SeedInitialModerator(ctx, s.cfg.SeedModeratorEmail, s.cfg.SeedModeratorPassword); err != nil {
			return err
		}
	}

	insights, err := s.store.ListInsights(ctx)
	if err != nil {
		return err
	}
	if len(insights) == 0 {
		seeds := []store.Insight{
			{
				Title:    "Navigating Rate Volatility in 2026",
				Author:   "Elena Marsh",
				Category: "Markets",
				Content:  "Central bank policy has entered a phase where forward guidance carries less weight than realized inflation prints. For portfolios with meaningful duration exposure, we recommend laddered maturities and a disciplined rebalancing cadence rather than tactical rate calls.",
			},
			{
				Title:    "Succession Planning for Family Enterprises",
				Author:   "Priya Nair",
				Category: "Wealth Planning",
				Content:  "The hardest conversations in a family business are rarely about valuation. Governance structures that separate ownership from day-to-day control give the next generation room to grow into leadership without forcing premature exits.",
			},
			{
				Title:    "The Quiet Rise of Private Credit",
				Author:   "Tom Becker",
				Category: "Alternatives",
				Content:  "Direct lending has absorbed much of the financing activity banks retreated from after the last tightening cycle. Covenant quality varies widely across managers, and manager selection now matters more than vintage.",
			},
		}
		for i := range seeds {
			seeds[i].ID = util.NewID("ins")
			seeds[i].Slug = util.Slugify(seeds[i].Title)
			seeds[i].CreatedAt = time.Now().UTC()
			if err := s.store.InsertInsight(ctx, seeds[i]); err != nil {
				return err
			}
		}
		insights = seeds
	}

	if s.search != nil {
		records := make([]search.InsightRecord, 0, len(insights))
		for _, insight := range insights {
			records = append(records, search.InsightRecord{
				ID:       insight.ID,
				Slug:     insight.Slug,
				Title:    insight.Title,
				Category: insight.Category,
				Content:  insight.Content,
			})
		}
		s.search.IndexInsights(records)
	}
	return nil
}

// ListInsights returns the published insight summaries, newest first.
func (s *Service) ListInsights(ctx context.Context) ([]map[string]any, error) {
	insights, err := s.store.ListInsights(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(insights))
	for _, insight := range insights {
		item, err := s.insightSummary(ctx, insight)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetInsightPage loads a single insight for display. A successful fetch counts
// as a view; the recorded view is reflected in the returned count. clientID
// may be empty, in which case the liked flag is false.
func (s *Service) GetInsightPage(ctx context.Context, slug, clientID string) (map[string]any, error) {
	insight, err := s.store.GetInsightBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	s.engagement.RecordView(ctx, insight.ID)
	insight.Views++

	liked := false
	if clientID != "" {
		liked, err = s.engagement.HasLiked(ctx, clientID, slug)
		if err != nil {
			log.Printf("app: liked lookup for client %s: %v", clientID, err)
			liked = false
		}
	}

	payload, err := s.insightSummary(ctx, insight)
	if err != nil {
		return nil, err
	}
	payload["content"] = insight.Content
	payload["liked"] = liked
	return payload, nil
}

func (s *Service) insightSummary(ctx context.Context, insight store.Insight) (map[string]any, error) {
	commentCount, err := s.store.ApprovedCommentCount(ctx, insight.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           insight.ID,
		"slug":         insight.Slug,
		"title":        insight.Title,
		"author":       insight.Author,
		"category":     insight.Category,
		"views":        insight.Views,
		"likes":        insight.Likes,
		"commentCount": commentCount,
		"imageUrl":     s.imageURL(ctx, insight),
		"createdAt":    insight.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) imageURL(ctx context.Context, insight store.Insight) string {
	if s.media == nil {
		return insight.FeaturedImage
	}
	return s.media.ImageURL(ctx, insight.FeaturedImage, insight.Slug)
}

// ToggleLike flips the caller's like on an insight and returns the state the
// client should display. A failed counter write reverts the liked state; the
// pre-toggle numbers travel back in the error details.
func (s *Service) ToggleLike(ctx context.Context, clientID, slug string) (engagement.LikeResult, error) {
	if strings.TrimSpace(clientID) == "" {
		return engagement.LikeResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "client id is required", nil)
	}
	insight, err := s.store.GetInsightBySlug(ctx, slug)
	if err != nil {
		return engagement.LikeResult{}, err
	}
	result, err := s.engagement.ToggleLike(ctx, clientID, slug, insight.ID, insight.Likes)
	if err != nil {
		return result, domainError(http.StatusBadGateway, "LIKE_FAILED", "Could not update like state", map[string]any{
			"likes": result.Likes,
			"liked": result.Liked,
		})
	}
	return result, nil
}

// SubmitComment stores a new comment in the moderation queue. Comments are
// never visible until a moderator approves them.
func (s *Service) SubmitComment(ctx context.Context, slug string, input SubmitCommentInput) (map[string]any, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment text is required", nil)
	}
	insight, err := s.store.GetInsightBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	author := strings.TrimSpace(input.Author)
	if author == "" {
		author = "Anonymous"
	}

	comment := store.Comment{
		ID:           util.NewID("cmt"),
		InsightID:    insight.ID,
		Author:       author,
		Text:         text,
		Approved:     false,
		CreatedAt:    time.Now().UTC(),
		InsightTitle: insight.Title,
		InsightSlug:  insight.Slug,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}

	s.notifyModerators(comment)

	return map[string]any{
		"id":     comment.ID,
		"status": "pending",
	}, nil
}

func (s *Service) notifyModerators(comment store.Comment) {
	if s.email == nil || !s.email.IsConfigured() || s.cfg.ModerationNotify == "" {
		return
	}
	go func() {
		if err := s.email.SendCommentNotification(s.cfg.ModerationNotify, email.CommentNotificationData{
			Author:       comment.Author,
			Text:         comment.Text,
			InsightTitle: comment.InsightTitle,
			InsightSlug:  comment.InsightSlug,
		}); err != nil {
			log.Printf("app: moderation notification: %v", err)
		}
	}()
}

// ApprovedComments returns the visible comments for an insight, newest first.
func (s *Service) ApprovedComments(ctx context.Context, slug string) (map[string]any, error) {
	insight, err := s.store.GetInsightBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListApprovedComments(ctx, insight.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		items = append(items, commentPayload(comment))
	}
	return map[string]any{
		"insightId": insight.ID,
		"comments":  items,
	}, nil
}

// ModerationQueue returns every comment across all insights, newest first,
// with the parent insight attached for display.
func (s *Service) ModerationQueue(ctx context.Context) (map[string]any, error) {
	comments, err := s.store.ListAllComments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		item := commentPayload(comment)
		item["approved"] = comment.Approved
		item["insightId"] = comment.InsightID
		item["insightTitle"] = comment.InsightTitle
		item["insightSlug"] = comment.InsightSlug
		item["pendingDeletion"] = s.hasPendingDelete(comment.InsightID, comment.ID)
		items = append(items, item)
	}
	return map[string]any{"comments": items}, nil
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":        comment.ID,
		"author":    comment.Author,
		"text":      comment.Text,
		"createdAt": comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// SetCommentApproval approves or un-approves a comment. The comment must
// belong to the given insight. Setting the current state again is a no-op
// that still succeeds.
func (s *Service) SetCommentApproval(ctx context.Context, insightID, commentID string, approved bool) error {
	updated, err := s.store.SetCommentApproved(ctx, insightID, commentID, approved)
	if err != nil {
		return err
	}
	if !updated {
		return sql.ErrNoRows
	}
	s.hub.Notify(insightID)
	return nil
}

// RequestCommentDelete starts the two-step deletion. The returned token must
// accompany the confirming call, and expires if the moderator walks away.
func (s *Service) RequestCommentDelete(insightID, commentID string) map[string]any {
	token := util.NewID("del")
	expiresAt := time.Now().Add(s.deleteConfirmTTL)

	s.deleteMu.Lock()
	s.prunePendingDeletes()
	s.pendingDeletes[insightID+"/"+commentID] = pendingDeleteRecord{
		token:     token,
		expiresAt: expiresAt,
	}
	s.deleteMu.Unlock()

	return map[string]any{
		"confirmToken": token,
		"expiresAt":    expiresAt.UTC().Format(time.RFC3339),
	}
}

// ConfirmCommentDelete performs the deletion started by RequestCommentDelete.
// The pending request is cleared no matter how confirmation ends, so a failed
// confirm must be restarted from the request step.
func (s *Service) ConfirmCommentDelete(ctx context.Context, insightID, commentID, confirmToken string) error {
	key := insightID + "/" + commentID

	s.deleteMu.Lock()
	record, ok := s.pendingDeletes[key]
	delete(s.pendingDeletes, key)
	s.deleteMu.Unlock()

	if !ok || record.token != confirmToken || time.Now().After(record.expiresAt) {
		return domainError(http.StatusConflict, "CONFIRM_REQUIRED", "Deletion must be requested before it can be confirmed", nil)
	}

	deleted, err := s.store.DeleteComment(ctx, insightID, commentID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	s.hub.Notify(insightID)
	return nil
}

func (s *Service) hasPendingDelete(insightID, commentID string) bool {
	s.deleteMu.Lock()
	defer s.deleteMu.Unlock()
	record, ok := s.pendingDeletes[insightID+"/"+commentID]
	return ok && time.Now().Before(record.expiresAt)
}

// prunePendingDeletes drops expired records. Caller holds deleteMu.
func (s *Service) prunePendingDeletes() {
	now := time.Now()
	for key, record := range s.pendingDeletes {
		if now.After(record.expiresAt) {
			delete(s.pendingDeletes, key)
		}
	}
}

// SearchInsights runs a full-text query over published insights.
func (s *Service) SearchInsights(text, category string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:     text,
		Category: category,
		Limit:    limit,
		Offset:   offset,
	})
}

// SubscribeComments registers a live subscription for one insight's approved
// comments. The returned channel ticks when the visible set may have changed.
func (s *Service) SubscribeComments(insightID string) (<-chan struct{}, func()) {
	return s.hub.Subscribe(insightID)
}

func (s *Service) InsightBySlug(ctx context.Context, slug string) (store.Insight, error) {
	return s.store.GetInsightBySlug(ctx, slug)
}

func (s *Service) Login(ctx context.Context, emailAddress, password string) (Session, error) {
	if s.auth == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	moderator, err := s.auth.SignIn(ctx, emailAddress, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, moderator)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	moderator, err := s.lookupRefresh(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.revokeRefresh(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, moderator)
}

func (s *Service) issueSession(ctx context.Context, moderator store.Moderator) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   moderator.ID,
		Email: moderator.Email,
		Role:  moderator.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.saveRefresh(ctx, auth.HashToken(refresh), moderator, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		ModeratorID:  moderator.ID,
		Email:        moderator.Email,
		DisplayName:  moderator.DisplayName,
		Role:         moderator.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	moderator, err := s.store.GetModeratorByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:       token,
		ModeratorID: moderator.ID,
		Email:       moderator.Email,
		DisplayName: moderator.DisplayName,
		Role:        moderator.Role,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.revokeRefresh(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) saveRefresh(ctx context.Context, tokenHash string, moderator store.Moderator, expiresAt time.Time) error {
	if s.sessions != nil {
		return s.sessions.SaveRefreshSession(ctx, tokenHash, moderator, expiresAt)
	}
	return s.store.SaveRefreshSession(ctx, tokenHash, moderator.ID, expiresAt)
}

func (s *Service) lookupRefresh(ctx context.Context, tokenHash string) (store.Moderator, error) {
	if s.sessions != nil {
		return s.sessions.LookupRefreshSession(ctx, tokenHash)
	}
	return s.store.LookupRefreshSession(ctx, tokenHash)
}

func (s *Service) revokeRefresh(ctx context.Context, tokenHash string) error {
	if s.sessions != nil {
		return s.sessions.RevokeRefreshSession(ctx, tokenHash)
	}
	return s.store.RevokeRefreshSession(ctx, tokenHash)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// CheckRedis pings the liked-state store when one is configured. checked is
// false when the deployment runs without Redis.
func (s *Service) CheckRedis(ctx context.Context) (checked bool, err error) {
	if s.redisPing == nil {
		return false, nil
	}
	return true, s.redisPing(ctx)
}
