package story

import (
	"context"
	"errors"

	"github.com/orgball2608/story-sync-engine/internal/domain"
)

var ErrNotFound = errors.New("story not found")
var ErrCannotCreate = errors.New("error create story")

//go:generate go run go.uber.org/mock/mockgen -source=story.go -destination=mocks/mock.go

// Repository is the boundary to the authoritative story store. Every call
// may fail with a transport error and must be treated as asynchronous.
type Repository interface {
	FetchAll(ctx context.Context) ([]domain.Story, error)
	CreateText(ctx context.Context, owner domain.Owner, text, backgroundHex string, privacy domain.Privacy) (*domain.Story, error)
	CreateMedia(ctx context.Context, owner domain.Owner, upload domain.MediaUpload, privacy domain.Privacy) (*domain.Story, error)
	RecordView(ctx context.Context, storyID, viewerID, viewerName string) error
	Delete(ctx context.Context, storyID string) error
}
