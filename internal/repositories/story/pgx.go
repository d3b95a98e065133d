package story

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-sync-engine/internal/domain"
)

var sqBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var ErrBadQuery = errors.New("bad query")

// Pgx is the repository implementation for deployments colocated with the
// story store.
type Pgx struct {
	pg    *pgxpool.Pool
	clock clockwork.Clock
}

func NewPgx(pg *pgxpool.Pool, clock clockwork.Clock) *Pgx {
	return &Pgx{
		pg:    pg,
		clock: clock,
	}
}

var _ Repository = (*Pgx)(nil)

func (p *Pgx) FetchAll(ctx context.Context) ([]domain.Story, error) {
	query, args, err := sqBuilder.
		Select("id", "owner_id", "owner_name", "owner_avatar_url", "content_type",
			"text", "background_hex", "media_url", "privacy", "created_at").
		From("stories").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]*domain.Story{}
	var stories []domain.Story
	for rows.Next() {
		var s domain.Story
		err = rows.Scan(&s.ID, &s.OwnerID, &s.OwnerName, &s.OwnerAvatarURL, &s.ContentType,
			&s.Text, &s.BackgroundHex, &s.MediaURL, &s.Privacy, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range stories {
		byID[stories[i].ID] = &stories[i]
	}

	if err := p.loadViewers(ctx, byID); err != nil {
		return nil, err
	}

	return stories, nil
}

func (p *Pgx) loadViewers(ctx context.Context, byID map[string]*domain.Story) error {
	if len(byID) == 0 {
		return nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query, args, err := sqBuilder.
		Select("story_id", "viewer_id", "viewer_name", "viewed_at").
		From("story_viewers").
		Where(sq.Eq{"story_id": ids}).
		OrderBy("viewed_at ASC").
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var storyID string
		var v domain.Viewer
		if err := rows.Scan(&storyID, &v.ID, &v.Name, &v.ViewedAt); err != nil {
			return err
		}
		if s, ok := byID[storyID]; ok {
			s.Viewers = append(s.Viewers, v)
		}
	}
	return rows.Err()
}

func (p *Pgx) CreateText(ctx context.Context, owner domain.Owner, text, backgroundHex string, privacy domain.Privacy) (*domain.Story, error) {
	s := domain.Story{
		ID:             uuid.NewString(),
		OwnerID:        owner.ID,
		OwnerName:      owner.Name,
		OwnerAvatarURL: owner.AvatarURL,
		ContentType:    domain.ContentTypeText,
		Text:           text,
		BackgroundHex:  backgroundHex,
		Privacy:        privacy,
		CreatedAt:      p.clock.Now(),
	}
	if err := p.insert(ctx, s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Pgx) CreateMedia(ctx context.Context, owner domain.Owner, upload domain.MediaUpload, privacy domain.Privacy) (*domain.Story, error) {
	id := uuid.NewString()
	s := domain.Story{
		ID:             id,
		OwnerID:        owner.ID,
		OwnerName:      owner.Name,
		OwnerAvatarURL: owner.AvatarURL,
		ContentType:    upload.ContentType,
		MediaURL:       fmt.Sprintf("/media/%s.%s", id, upload.FileExtension),
		Privacy:        privacy,
		CreatedAt:      p.clock.Now(),
	}
	if err := p.insert(ctx, s, upload.Bytes); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Pgx) insert(ctx context.Context, s domain.Story, mediaData []byte) error {
	query, args, err := sqBuilder.
		Insert("stories").
		Columns(
			"id",
			"owner_id",
			"owner_name",
			"owner_avatar_url",
			"content_type",
			"text",
			"background_hex",
			"media_url",
			"media_data",
			"privacy",
			"created_at",
		).Values(
		s.ID,
		s.OwnerID,
		s.OwnerName,
		s.OwnerAvatarURL,
		s.ContentType,
		s.Text,
		s.BackgroundHex,
		s.MediaURL,
		mediaData,
		s.Privacy,
		s.CreatedAt,
	).ToSql()
	if err != nil {
		return ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	if err != nil {
		return errors.Join(err, ErrCannotCreate)
	}

	return nil
}

func (p *Pgx) RecordView(ctx context.Context, storyID, viewerID, viewerName string) error {
	query, args, err := sqBuilder.
		Select("id").
		From("stories").
		Where(sq.Eq{"id": storyID}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	var id string
	if err := p.pg.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	query, args, err = sqBuilder.
		Insert("story_viewers").
		Columns("story_id", "viewer_id", "viewer_name", "viewed_at").
		Values(storyID, viewerID, viewerName, p.clock.Now()).
		Suffix("ON CONFLICT (story_id, viewer_id) DO NOTHING").
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) Delete(ctx context.Context, storyID string) error {
	query, args, err := sqBuilder.
		Delete("stories").
		Where(sq.Eq{"id": storyID}).
		ToSql()
	if err != nil {
		return ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
