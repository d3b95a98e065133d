package status

import (
	"context"
	"errors"

	"github.com/orgball2608/story-sync-engine/internal/domain"
)

var ErrEmptyText = errors.New("story text is empty")
var ErrNotOwner = errors.New("caller does not own this story")
var ErrRepository = errors.New("repository failure")

// Client is the status orchestrator: it owns the in-memory story store and
// drives posting, deletion, view recording and reloads against the remote
// repository. All operations are safe for concurrent use.
type Client interface {
	// Reload fetches the full story set and merges it into the store. It
	// never fails to the caller: on error the prior store is left untouched
	// and a user-visible error is recorded.
	Reload(ctx context.Context)

	PostTextStory(ctx context.Context, owner domain.Owner, text, backgroundHex string, privacy domain.Privacy) error
	PostMediaStory(ctx context.Context, owner domain.Owner, upload domain.MediaUpload, privacy domain.Privacy) error

	// MarkViewed is idempotent: an absent story or a repeat view is a no-op.
	MarkViewed(ctx context.Context, storyID, viewerID, viewerName string) error

	// DeleteStory enforces ownership in the core: callerID must match the
	// story's owner.
	DeleteStory(ctx context.Context, callerID, storyID string) error

	// Mine and Others are derived partitions of the store, recomputed on
	// every access, newest first.
	Mine(userID string) []domain.Story
	Others(userID string) []domain.Story
	Snapshot() []domain.Story

	IsSaving() bool
	Err() string
	ClearErr()
}
