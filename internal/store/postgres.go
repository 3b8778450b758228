package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ListInsights(ctx context.Context) ([]Insight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, title, author, category, content, COALESCE(featured_image, ''), views, likes, created_at
		FROM insights
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	items := make([]Insight, 0)
	for rows.Next() {
		var item Insight
		if err := rows.Scan(&item.ID, &item.Slug, &item.Title, &item.Author, &item.Category, &item.Content, &item.FeaturedImage, &item.Views, &item.Likes, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insights: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetInsightBySlug(ctx context.Context, slug string) (Insight, error) {
	var item Insight
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, title, author, category, content, COALESCE(featured_image, ''), views, likes, created_at
		FROM insights
		WHERE slug=$1
	`, slug).Scan(&item.ID, &item.Slug, &item.Title, &item.Author, &item.Category, &item.Content, &item.FeaturedImage, &item.Views, &item.Likes, &item.CreatedAt)
	if err != nil {
		return Insight{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetInsight(ctx context.Context, insightID string) (Insight, error) {
	var item Insight
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, title, author, category, content, COALESCE(featured_image, ''), views, likes, created_at
		FROM insights
		WHERE id=$1
	`, insightID).Scan(&item.ID, &item.Slug, &item.Title, &item.Author, &item.Category, &item.Content, &item.FeaturedImage, &item.Views, &item.Likes, &item.CreatedAt)
	if err != nil {
		return Insight{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertInsight(ctx context.Context, item Insight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insights (id, slug, title, author, category, content, featured_image)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Slug, item.Title, item.Author, item.Category, item.Content, item.FeaturedImage)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

// AddViews applies an atomic server-side delta to the view counter. The
// counter never drops below zero.
func (s *PostgresStore) AddViews(ctx context.Context, insightID string, delta int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE insights SET views = GREATEST(views + $2, 0) WHERE id=$1
	`, insightID, delta)
	if err != nil {
		return fmt.Errorf("add views: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add views rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddLikes applies an atomic server-side delta to the like counter, never a
// read-modify-write, so concurrent likers do not lose updates.
func (s *PostgresStore) AddLikes(ctx context.Context, insightID string, delta int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE insights SET likes = GREATEST(likes + $2, 0) WHERE id=$1
	`, insightID, delta)
	if err != nil {
		return fmt.Errorf("add likes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add likes rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, insight_id, author, body, approved, insight_title, insight_slug)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, comment.ID, comment.InsightID, comment.Author, comment.Text, comment.Approved, comment.InsightTitle, comment.InsightSlug)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovedComments(ctx context.Context, insightID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, insight_id, author, body, approved, insight_title, insight_slug, created_at
		FROM comments
		WHERE insight_id=$1 AND approved=TRUE
		ORDER BY COALESCE(created_at, to_timestamp(0)) DESC
	`, insightID)
	if err != nil {
		return nil, fmt.Errorf("list approved comments: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

// ListAllComments returns every comment across every insight, newest first.
// The parent reference comes from the insight_id foreign key, not from the
// denormalized title/slug copies, so it stays correct even if those go stale.
func (s *PostgresStore) ListAllComments(ctx context.Context) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, insight_id, author, body, approved, insight_title, insight_slug, created_at
		FROM comments
		ORDER BY COALESCE(created_at, to_timestamp(0)) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all comments: %w", err)
	}
	defer rows.Close()
	return scanComments(rows)
}

func scanComments(rows *sql.Rows) ([]Comment, error) {
	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.InsightID, &item.Author, &item.Text, &item.Approved, &item.InsightTitle, &item.InsightSlug, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ApprovedCommentCount(ctx context.Context, insightID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM comments WHERE insight_id=$1 AND approved=TRUE
	`, insightID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count approved comments: %w", err)
	}
	return count, nil
}

// SetCommentApproved flips the approval flag. Setting the current value again
// is a no-op at the data level. Returns false when no such comment exists
// under the given insight.
func (s *PostgresStore) SetCommentApproved(ctx context.Context, insightID, commentID string, approved bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments SET approved=$3 WHERE insight_id=$1 AND id=$2
	`, insightID, commentID, approved)
	if err != nil {
		return false, fmt.Errorf("set comment approved: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set comment approved rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, insightID, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM comments WHERE insight_id=$1 AND id=$2
	`, insightID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) GetModeratorByEmail(ctx context.Context, email string) (Moderator, error) {
	var item Moderator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, created_at
		FROM moderators
		WHERE email=$1
	`, email).Scan(&item.ID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.Role, &item.CreatedAt)
	if err != nil {
		return Moderator{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetModeratorByID(ctx context.Context, moderatorID string) (Moderator, error) {
	var item Moderator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, created_at
		FROM moderators
		WHERE id=$1
	`, moderatorID).Scan(&item.ID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.Role, &item.CreatedAt)
	if err != nil {
		return Moderator{}, err
	}
	return item, nil
}

func (s *PostgresStore) CreateModerator(ctx context.Context, moderator Moderator) error {
	role := moderator.Role
	if role == "" {
		role = "moderator"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderators (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`, moderator.ID, moderator.Email, moderator.DisplayName, moderator.PasswordHash, role)
	if err != nil {
		return fmt.Errorf("create moderator: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateModeratorPassword(ctx context.Context, moderatorID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE moderators SET password_hash=$2 WHERE id=$1
	`, moderatorID, passwordHash)
	if err != nil {
		return fmt.Errorf("update moderator password: %w", err)
	}
	return nil
}

func (s *PostgresStore) ModeratorCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM moderators`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count moderators: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, moderatorID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, moderator_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET moderator_id=EXCLUDED.moderator_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, moderatorID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Moderator, error) {
	const query = `
		SELECT m.id, m.email, m.display_name, m.password_hash, m.role, m.created_at
		FROM refresh_sessions rs
		JOIN moderators m ON m.id = rs.moderator_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var item Moderator
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&item.ID, &item.Email, &item.DisplayName, &item.PasswordHash, &item.Role, &item.CreatedAt)
	if err != nil {
		return Moderator{}, err
	}
	return item, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
