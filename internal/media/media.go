package media

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/orgball2608/story-sync-engine/internal/domain"
)

var ErrMediaTooLong = errors.New("video exceeds the maximum story duration")
var ErrMediaUnreadable = errors.New("media could not be read")

// Source is an opaque reference to a user-selected media item. The media
// provider (photo picker, camera roll) supplies the declared content type
// and, for videos, the playable duration.
type Source interface {
	ContentType() string
	Duration(ctx context.Context) (time.Duration, error)
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Pipeline turns a Source into a validated upload payload, or fails before
// any network call is made.
type Pipeline interface {
	Validate(ctx context.Context, src Source) (*domain.MediaUpload, error)
}

// FileSource is a file-backed Source. PlayableDuration comes from the
// media provider; the pipeline never decodes the video itself.
type FileSource struct {
	Path             string
	DeclaredType     string
	PlayableDuration time.Duration
}

var _ Source = FileSource{}

func (f FileSource) ContentType() string {
	return f.DeclaredType
}

func (f FileSource) Duration(_ context.Context) (time.Duration, error) {
	return f.PlayableDuration, nil
}

func (f FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(f.Path)
}
