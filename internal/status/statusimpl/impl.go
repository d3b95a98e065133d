package statusimpl

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-sync-engine/internal/domain"
	"github.com/orgball2608/story-sync-engine/internal/repositories/story"
	"github.com/orgball2608/story-sync-engine/internal/status"
	"github.com/orgball2608/story-sync-engine/pkg/logger"
	"github.com/samber/lo"
	"go.uber.org/fx"
)

const (
	msgReloadFailed = "Could not refresh stories. Please try again."
	msgEmptyText    = "Story text cannot be empty."
	msgPostFailed   = "Could not post your story. Please try again."
	msgNotOwner     = "You can only delete your own stories."
	msgGone         = "This story no longer exists."
	msgDeleteFailed = "Could not delete the story. Please try again."
	msgViewFailed   = "Could not record your view. It will sync on the next refresh."
)

type Opts struct {
	fx.In

	StoryRepo story.Repository
	Logger    logger.Logger
	Clock     clockwork.Clock
}

type StatusImpl struct {
	StoryRepo story.Repository
	Logger    logger.Logger
	Clock     clockwork.Clock

	mu     sync.Mutex
	store  *storyStore
	gen    uint64
	saving bool
	errMsg string
}

func New(opts Opts) *StatusImpl {
	return &StatusImpl{
		StoryRepo: opts.StoryRepo,
		Logger:    opts.Logger,
		Clock:     opts.Clock,
		store:     newStoryStore(),
	}
}

var _ status.Client = (*StatusImpl)(nil)

// Reload is safe to call concurrently with itself: each invocation gets a
// generation number, and only the most recently issued generation may
// apply its snapshot. A slow stale fetch is discarded rather than allowed
// to clobber fresher state.
func (s *StatusImpl) Reload(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	baseSeq := s.store.seq
	s.mu.Unlock()

	stories, err := s.StoryRepo.FetchAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.Logger.Debug("Discarding superseded reload", "gen", gen, "latest", s.gen)
		return
	}
	if err != nil {
		s.Logger.Error("Reload failed", "error", err)
		s.errMsg = msgReloadFailed
		return
	}

	s.store.applySnapshot(stories, baseSeq)
	s.errMsg = ""
	s.Logger.Debug("Reload applied", "gen", gen, "stories", len(stories))
}

func (s *StatusImpl) PostTextStory(ctx context.Context, owner domain.Owner, text, backgroundHex string, privacy domain.Privacy) error {
	if strings.TrimSpace(text) == "" {
		s.setErr(msgEmptyText)
		return status.ErrEmptyText
	}

	s.setSaving(true)
	defer s.setSaving(false)

	created, err := s.StoryRepo.CreateText(ctx, owner, text, backgroundHex, privacy)
	if err != nil {
		s.Logger.Error("Failed to create text story", "owner", owner.ID, "error", err)
		s.setErr(msgPostFailed)
		return errors.Join(err, status.ErrRepository)
	}

	s.mu.Lock()
	s.store.insert(*created)
	s.errMsg = ""
	s.mu.Unlock()

	s.Logger.Info("Posted text story", "story_id", created.ID, "owner", owner.ID)
	return nil
}

func (s *StatusImpl) PostMediaStory(ctx context.Context, owner domain.Owner, upload domain.MediaUpload, privacy domain.Privacy) error {
	s.setSaving(true)
	defer s.setSaving(false)

	created, err := s.StoryRepo.CreateMedia(ctx, owner, upload, privacy)
	if err != nil {
		s.Logger.Error("Failed to create media story", "owner", owner.ID, "error", err)
		s.setErr(msgPostFailed)
		return errors.Join(err, status.ErrRepository)
	}

	s.mu.Lock()
	s.store.insert(*created)
	s.errMsg = ""
	s.mu.Unlock()

	s.Logger.Info("Posted media story", "story_id", created.ID, "owner", owner.ID, "type", created.ContentType)
	return nil
}

func (s *StatusImpl) MarkViewed(ctx context.Context, storyID, viewerID, viewerName string) error {
	s.mu.Lock()
	e := s.store.get(storyID)
	if e == nil || e.story.HasViewer(viewerID) {
		s.mu.Unlock()
		return nil
	}
	// Optimistic append; a later reload reconciles by viewer identity, so
	// the same view is never duplicated.
	s.store.appendViewer(storyID, domain.Viewer{
		ID:       viewerID,
		Name:     viewerName,
		ViewedAt: s.Clock.Now(),
	})
	s.mu.Unlock()

	err := s.StoryRepo.RecordView(ctx, storyID, viewerID, viewerName)
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			// The story vanished remotely; the next reload drops it.
			return nil
		}
		s.Logger.Warn("Failed to record view", "story_id", storyID, "viewer", viewerID, "error", err)
		s.setErr(msgViewFailed)
		return errors.Join(err, status.ErrRepository)
	}
	return nil
}

func (s *StatusImpl) DeleteStory(ctx context.Context, callerID, storyID string) error {
	s.mu.Lock()
	e := s.store.get(storyID)
	if e == nil {
		s.mu.Unlock()
		s.setErr(msgGone)
		return story.ErrNotFound
	}
	if e.story.OwnerID != callerID {
		s.mu.Unlock()
		s.Logger.Warn("Rejected delete by non-owner", "story_id", storyID, "caller", callerID)
		s.setErr(msgNotOwner)
		return status.ErrNotOwner
	}
	s.mu.Unlock()

	if err := s.StoryRepo.Delete(ctx, storyID); err != nil {
		if errors.Is(err, story.ErrNotFound) {
			s.setErr(msgGone)
			return err
		}
		s.Logger.Error("Failed to delete story", "story_id", storyID, "error", err)
		s.setErr(msgDeleteFailed)
		return errors.Join(err, status.ErrRepository)
	}

	s.mu.Lock()
	s.store.remove(storyID)
	s.errMsg = ""
	s.mu.Unlock()

	s.Logger.Info("Deleted story", "story_id", storyID)
	return nil
}

func (s *StatusImpl) Snapshot() []domain.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.list()
}

func (s *StatusImpl) Mine(userID string) []domain.Story {
	return lo.Filter(s.Snapshot(), func(st domain.Story, _ int) bool {
		return st.OwnerID == userID
	})
}

func (s *StatusImpl) Others(userID string) []domain.Story {
	return lo.Filter(s.Snapshot(), func(st domain.Story, _ int) bool {
		return st.OwnerID != userID
	})
}

func (s *StatusImpl) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *StatusImpl) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *StatusImpl) ClearErr() {
	s.setErr("")
}

func (s *StatusImpl) setErr(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}

func (s *StatusImpl) setSaving(v bool) {
	s.mu.Lock()
	s.saving = v
	s.mu.Unlock()
}
