package story

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/orgball2608/story-sync-engine/internal/domain"
	pkgerrors "github.com/orgball2608/story-sync-engine/pkg/errors"
	"github.com/orgball2608/story-sync-engine/pkg/logger"
	"github.com/orgball2608/story-sync-engine/pkg/retry"
)

// HTTP talks to the remote story service. Idempotent calls are retried
// with backoff; creates are issued once.
type HTTP struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

func NewHTTP(baseURL string, timeout time.Duration, log logger.Logger) *HTTP {
	return &HTTP{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

var _ Repository = (*HTTP)(nil)

type storyDTO struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"owner_id"`
	OwnerName      string      `json:"owner_name"`
	OwnerAvatarURL string      `json:"owner_avatar_url"`
	ContentType    string      `json:"content_type"`
	Text           string      `json:"text,omitempty"`
	BackgroundHex  string      `json:"background_hex,omitempty"`
	MediaURL       string      `json:"media_url,omitempty"`
	Privacy        string      `json:"privacy"`
	CreatedAt      time.Time   `json:"created_at"`
	Viewers        []viewerDTO `json:"viewers,omitempty"`
}

type viewerDTO struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	ViewedAt time.Time `json:"viewed_at"`
}

func (d storyDTO) toDomain() domain.Story {
	s := domain.Story{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		OwnerName:      d.OwnerName,
		OwnerAvatarURL: d.OwnerAvatarURL,
		ContentType:    domain.ContentType(d.ContentType),
		Text:           d.Text,
		BackgroundHex:  d.BackgroundHex,
		MediaURL:       d.MediaURL,
		Privacy:        domain.Privacy(d.Privacy),
		CreatedAt:      d.CreatedAt,
	}
	for _, v := range d.Viewers {
		s.Viewers = append(s.Viewers, domain.Viewer{ID: v.ID, Name: v.Name, ViewedAt: v.ViewedAt})
	}
	return s
}

func (h *HTTP) FetchAll(ctx context.Context) ([]domain.Story, error) {
	var dtos []storyDTO
	op := func() error {
		return h.getJSON(ctx, "/stories", &dtos)
	}
	if err := retry.Do(ctx, h.log, "FetchAll", op, retry.DefaultConfig()); err != nil {
		return nil, pkgerrors.Wrap(err, "fetch stories")
	}

	stories := make([]domain.Story, 0, len(dtos))
	for _, d := range dtos {
		stories = append(stories, d.toDomain())
	}
	return stories, nil
}

func (h *HTTP) CreateText(ctx context.Context, owner domain.Owner, text, backgroundHex string, privacy domain.Privacy) (*domain.Story, error) {
	body := map[string]any{
		"owner_id":         owner.ID,
		"owner_name":       owner.Name,
		"owner_avatar_url": owner.AvatarURL,
		"text":             text,
		"background_hex":   backgroundHex,
		"privacy":          string(privacy),
	}
	var dto storyDTO
	if err := h.postJSON(ctx, "/stories/text", body, &dto); err != nil {
		return nil, pkgerrors.Wrap(err, "create text story")
	}
	s := dto.toDomain()
	return &s, nil
}

func (h *HTTP) CreateMedia(ctx context.Context, owner domain.Owner, upload domain.MediaUpload, privacy domain.Privacy) (*domain.Story, error) {
	body := map[string]any{
		"owner_id":         owner.ID,
		"owner_name":       owner.Name,
		"owner_avatar_url": owner.AvatarURL,
		"bytes":            upload.Bytes,
		"file_extension":   upload.FileExtension,
		"content_type":     string(upload.ContentType),
		"privacy":          string(privacy),
	}
	var dto storyDTO
	if err := h.postJSON(ctx, "/stories/media", body, &dto); err != nil {
		return nil, pkgerrors.Wrap(err, "create media story")
	}
	s := dto.toDomain()
	return &s, nil
}

func (h *HTTP) RecordView(ctx context.Context, storyID, viewerID, viewerName string) error {
	body := map[string]any{
		"viewer_id":   viewerID,
		"viewer_name": viewerName,
	}
	path := fmt.Sprintf("/stories/%s/views", url.PathEscape(storyID))
	op := func() error {
		err := h.postJSON(ctx, path, body, nil)
		if pkgerrors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	}
	return retry.Do(ctx, h.log, "RecordView", op, retry.DefaultConfig())
}

func (h *HTTP) Delete(ctx context.Context, storyID string) error {
	path := fmt.Sprintf("/stories/%s", url.PathEscape(storyID))
	op := func() error {
		err := h.do(ctx, http.MethodDelete, path, nil, nil)
		if pkgerrors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	}
	return retry.Do(ctx, h.log, "Delete", op, retry.DefaultConfig())
}

func (h *HTTP) getJSON(ctx context.Context, path string, out any) error {
	return h.do(ctx, http.MethodGet, path, nil, out)
}

func (h *HTTP) postJSON(ctx context.Context, path string, body, out any) error {
	return h.do(ctx, http.MethodPost, path, body, out)
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("story service responded %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
