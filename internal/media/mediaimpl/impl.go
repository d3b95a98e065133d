package mediaimpl

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/orgball2608/story-sync-engine/internal/domain"
	"github.com/orgball2608/story-sync-engine/internal/media"
	"github.com/orgball2608/story-sync-engine/pkg/config"
	"github.com/orgball2608/story-sync-engine/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Logger logger.Logger
	Config *config.Config
}

type MediaImpl struct {
	Logger      logger.Logger
	MaxDuration time.Duration
}

func New(opts Opts) *MediaImpl {
	return &MediaImpl{
		Logger:      opts.Logger,
		MaxDuration: opts.Config.Media.MaxVideoDuration,
	}
}

var _ media.Pipeline = (*MediaImpl)(nil)

// knownExtensions maps declared MIME types to their canonical extension.
// Anything else falls back to mp4 (video) or jpg (image).
var knownExtensions = map[string]string{
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
	"video/webm":      "webm",
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/heic":      "heic",
}

func (m *MediaImpl) Validate(ctx context.Context, src media.Source) (*domain.MediaUpload, error) {
	declared := strings.ToLower(strings.TrimSpace(src.ContentType()))
	contentType := classify(declared)
	ext, extKnown := knownExtensions[declared]
	if !extKnown {
		if contentType == domain.ContentTypeVideo {
			ext = "mp4"
		} else {
			ext = "jpg"
		}
	}

	// The duration gate runs before the byte read: rejecting an over-long
	// video must not cost a full file materialization.
	if contentType == domain.ContentTypeVideo {
		d, err := src.Duration(ctx)
		if err != nil {
			return nil, errors.Join(err, media.ErrMediaUnreadable)
		}
		if d > m.MaxDuration {
			m.Logger.Info("Rejecting over-long video", "duration", d, "max", m.MaxDuration)
			return nil, media.ErrMediaTooLong
		}
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, errors.Join(err, media.ErrMediaUnreadable)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Join(err, media.ErrMediaUnreadable)
	}

	// When the declared type gave us nothing to go on, sniff the bytes for
	// a better extension. Classification stays with the declared type, so
	// a sniff result from the other media family is ignored.
	if !extKnown {
		mt := mimetype.Detect(b)
		if strings.HasPrefix(mt.String(), string(contentType)+"/") {
			if sniffed := strings.TrimPrefix(mt.Extension(), "."); sniffed != "" {
				ext = sniffed
			}
		}
	}

	return &domain.MediaUpload{
		Bytes:         b,
		FileExtension: ext,
		ContentType:   contentType,
	}, nil
}

func classify(declared string) domain.ContentType {
	if strings.HasPrefix(declared, "video/") {
		return domain.ContentTypeVideo
	}
	return domain.ContentTypeImage
}
