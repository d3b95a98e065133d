package statusimpl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-sync-engine/internal/domain"
	"github.com/orgball2608/story-sync-engine/internal/repositories/story"
	"github.com/orgball2608/story-sync-engine/internal/status"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fakeRepo is an in-memory repository with injectable failures and call
// counters.
type fakeRepo struct {
	mu      sync.Mutex
	stories map[string]domain.Story
	nextID  int

	fetchErr  error
	createErr error
	deleteErr error
	recordErr error

	fetchCalls  int
	createCalls int
	recordCalls int
	deleteCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stories: map[string]domain.Story{}}
}

func (r *fakeRepo) FetchAll(_ context.Context) ([]domain.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchCalls++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	out := make([]domain.Story, 0, len(r.stories))
	for _, s := range r.stories {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (r *fakeRepo) CreateText(_ context.Context, owner domain.Owner, text, backgroundHex string, privacy domain.Privacy) (*domain.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	s := domain.Story{
		ID:            fmt.Sprintf("s-%d", r.nextID),
		OwnerID:       owner.ID,
		OwnerName:     owner.Name,
		ContentType:   domain.ContentTypeText,
		Text:          text,
		BackgroundHex: backgroundHex,
		Privacy:       privacy,
		CreatedAt:     time.Unix(int64(1_700_000_000+r.nextID), 0),
	}
	r.stories[s.ID] = s
	return &s, nil
}

func (r *fakeRepo) CreateMedia(_ context.Context, owner domain.Owner, upload domain.MediaUpload, privacy domain.Privacy) (*domain.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	s := domain.Story{
		ID:          fmt.Sprintf("s-%d", r.nextID),
		OwnerID:     owner.ID,
		OwnerName:   owner.Name,
		ContentType: upload.ContentType,
		MediaURL:    fmt.Sprintf("/media/s-%d.%s", r.nextID, upload.FileExtension),
		Privacy:     privacy,
		CreatedAt:   time.Unix(int64(1_700_000_000+r.nextID), 0),
	}
	r.stories[s.ID] = s
	return &s, nil
}

func (r *fakeRepo) RecordView(_ context.Context, storyID, viewerID, viewerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordCalls++
	if r.recordErr != nil {
		return r.recordErr
	}
	s, ok := r.stories[storyID]
	if !ok {
		return story.ErrNotFound
	}
	if !s.HasViewer(viewerID) {
		s.Viewers = append(s.Viewers, domain.Viewer{ID: viewerID, Name: viewerName, ViewedAt: time.Now()})
		r.stories[storyID] = s
	}
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, storyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.stories[storyID]; !ok {
		return story.ErrNotFound
	}
	delete(r.stories, storyID)
	return nil
}

func newClient(repo story.Repository) *StatusImpl {
	return New(Opts{
		StoryRepo: repo,
		Logger:    nopLogger{},
		Clock:     clockwork.NewFakeClock(),
	})
}

func seed(t *testing.T, repo *fakeRepo, c *StatusImpl, stories ...domain.Story) {
	t.Helper()
	repo.mu.Lock()
	for _, s := range stories {
		repo.stories[s.ID] = s
	}
	repo.mu.Unlock()
	c.Reload(context.Background())
	if got := len(c.Snapshot()); got != len(repo.stories) {
		t.Fatalf("seed reload: expected %d stories, got %d", len(repo.stories), got)
	}
}

func TestPostTextStory_EmptyTextRejected(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)

	err := c.PostTextStory(context.Background(), domain.Owner{ID: "u1"}, "   ", "#112233", domain.PrivacyContacts)
	if !errors.Is(err, status.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatalf("repository must not be called for empty text, got %d calls", repo.createCalls)
	}
	if len(c.Snapshot()) != 0 {
		t.Fatal("store must be unchanged")
	}
	if c.Err() == "" {
		t.Fatal("expected a user-visible error")
	}
}

func TestPostTextStory_SavingFlagClearedOnFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("remote down")
	c := newClient(repo)

	err := c.PostTextStory(context.Background(), domain.Owner{ID: "u1"}, "hello", "#112233", domain.PrivacyEveryone)
	if !errors.Is(err, status.ErrRepository) {
		t.Fatalf("expected ErrRepository, got %v", err)
	}
	if c.IsSaving() {
		t.Fatal("IsSaving must be cleared on failure")
	}
	if len(c.Snapshot()) != 0 {
		t.Fatal("store must be unchanged on failure")
	}
	if c.Err() == "" {
		t.Fatal("expected a user-visible error")
	}
}

func TestMarkViewed_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)
	seed(t, repo, c, domain.Story{
		ID: "s-1", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "hi", CreatedAt: time.Unix(1, 0),
	})

	ctx := context.Background()
	if err := c.MarkViewed(ctx, "s-1", "v1", "Viewer One"); err != nil {
		t.Fatalf("first view: %v", err)
	}
	if err := c.MarkViewed(ctx, "s-1", "v1", "Viewer One"); err != nil {
		t.Fatalf("repeat view: %v", err)
	}

	got := c.Snapshot()[0].Viewers
	if len(got) != 1 || got[0].ID != "v1" {
		t.Fatalf("expected exactly one viewer entry for v1, got %v", got)
	}
	if repo.recordCalls != 1 {
		t.Fatalf("repeat views must not reach the repository, got %d calls", repo.recordCalls)
	}
}

func TestMarkViewed_AbsentStoryIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)

	if err := c.MarkViewed(context.Background(), "missing", "v1", "Viewer One"); err != nil {
		t.Fatalf("expected no error for absent story, got %v", err)
	}
	if repo.recordCalls != 0 {
		t.Fatal("absent story must not reach the repository")
	}
}

func TestMarkViewed_ReconciledAfterReload(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)
	seed(t, repo, c, domain.Story{
		ID: "s-1", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "hi", CreatedAt: time.Unix(1, 0),
	})

	ctx := context.Background()
	if err := c.MarkViewed(ctx, "s-1", "v1", "Viewer One"); err != nil {
		t.Fatal(err)
	}
	// The remote now has the same view; a reload must not duplicate it.
	c.Reload(ctx)

	got := c.Snapshot()[0].Viewers
	if len(got) != 1 {
		t.Fatalf("expected one viewer after reload, got %d", len(got))
	}
}

func TestDeleteStory_OwnershipEnforced(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)
	seed(t, repo, c, domain.Story{
		ID: "s-1", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "hi", CreatedAt: time.Unix(1, 0),
	})

	err := c.DeleteStory(context.Background(), "u2", "s-1")
	if !errors.Is(err, status.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if repo.deleteCalls != 0 {
		t.Fatal("ownership is enforced before the repository is called")
	}
	if len(c.Snapshot()) != 1 {
		t.Fatal("store must be unchanged")
	}
}

func TestDeleteStory_NotFoundSurfaced(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)

	err := c.DeleteStory(context.Background(), "u1", "missing")
	if !errors.Is(err, story.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if c.Err() == "" {
		t.Fatal("expected a user-visible error")
	}
}

func TestPartitions(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)
	seed(t, repo, c,
		domain.Story{ID: "a", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "1", CreatedAt: time.Unix(3, 0)},
		domain.Story{ID: "b", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "2", CreatedAt: time.Unix(2, 0)},
		domain.Story{ID: "c", OwnerID: "u2", ContentType: domain.ContentTypeText, Text: "3", CreatedAt: time.Unix(1, 0)},
	)

	mine := c.Mine("u1")
	others := c.Others("u1")
	if len(mine) != 2 || len(others) != 1 {
		t.Fatalf("expected mine=2 others=1, got mine=%d others=%d", len(mine), len(others))
	}

	union := map[string]bool{}
	for _, s := range mine {
		union[s.ID] = true
	}
	for _, s := range others {
		union[s.ID] = true
	}
	if len(union) != len(c.Snapshot()) {
		t.Fatalf("partition union must equal the full store, got %d vs %d", len(union), len(c.Snapshot()))
	}
}

func TestReload_FailureLeavesStoreUntouched(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)
	seed(t, repo, c, domain.Story{
		ID: "s-1", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "hi", CreatedAt: time.Unix(1, 0),
	})

	repo.mu.Lock()
	repo.fetchErr = errors.New("remote down")
	repo.mu.Unlock()

	c.Reload(context.Background())

	if len(c.Snapshot()) != 1 {
		t.Fatal("failed reload must not touch the store")
	}
	if c.Err() == "" {
		t.Fatal("expected a user-visible error")
	}
}

// blockingRepo lets the test control when each FetchAll resolves.
type blockingRepo struct {
	fakeRepo
	calls chan *fetchCall
}

type fetchCall struct {
	resp chan []domain.Story
}

func newBlockingRepo() *blockingRepo {
	return &blockingRepo{
		fakeRepo: fakeRepo{stories: map[string]domain.Story{}},
		calls:    make(chan *fetchCall, 8),
	}
}

func (r *blockingRepo) FetchAll(_ context.Context) ([]domain.Story, error) {
	c := &fetchCall{resp: make(chan []domain.Story)}
	r.calls <- c
	return <-c.resp, nil
}

func TestReload_MonotonicGenerations(t *testing.T) {
	repo := newBlockingRepo()
	c := newClient(repo)
	ctx := context.Background()

	var wgA, wgB sync.WaitGroup

	// Reload A is issued first and resolves last.
	wgA.Add(1)
	go func() {
		defer wgA.Done()
		c.Reload(ctx)
	}()
	callA := <-repo.calls

	wgB.Add(1)
	go func() {
		defer wgB.Done()
		c.Reload(ctx)
	}()
	callB := <-repo.calls

	staleSet := []domain.Story{{ID: "stale", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "old", CreatedAt: time.Unix(1, 0)}}
	freshSet := []domain.Story{{ID: "fresh", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "new", CreatedAt: time.Unix(2, 0)}}

	callB.resp <- freshSet
	wgB.Wait()

	callA.resp <- staleSet
	wgA.Wait()

	got := c.Snapshot()
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("store must reflect the most recently issued reload, got %v", got)
	}
}

func TestReload_DoesNotClobberConcurrentPost(t *testing.T) {
	repo := newBlockingRepo()
	c := newClient(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Reload(ctx)
	}()
	call := <-repo.calls

	// A post completes while the reload is still in flight.
	if err := c.PostTextStory(ctx, domain.Owner{ID: "u1"}, "hello", "#112233", domain.PrivacyEveryone); err != nil {
		t.Fatal(err)
	}

	// The reload's snapshot predates the post.
	call.resp <- nil
	wg.Wait()

	got := c.Snapshot()
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("a stale reload must not clobber a completed post, got %v", got)
	}
}

func TestReload_DoesNotResurrectConcurrentDelete(t *testing.T) {
	repo := newBlockingRepo()
	c := newClient(repo)
	ctx := context.Background()

	doomed := domain.Story{ID: "s-1", OwnerID: "u1", ContentType: domain.ContentTypeText, Text: "hi", CreatedAt: time.Unix(1, 0)}
	repo.mu.Lock()
	repo.stories["s-1"] = doomed
	repo.mu.Unlock()

	// First reload to get the story into the store.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Reload(ctx)
	}()
	(<-repo.calls).resp <- []domain.Story{doomed}
	wg.Wait()

	// Second reload in flight while the owner deletes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Reload(ctx)
	}()
	call := <-repo.calls

	if err := c.DeleteStory(ctx, "u1", "s-1"); err != nil {
		t.Fatal(err)
	}

	// The stale snapshot still contains the deleted story.
	call.resp <- []domain.Story{doomed}
	wg.Wait()

	if len(c.Snapshot()) != 0 {
		t.Fatal("a stale reload must not resurrect a deleted story")
	}
}

func TestEndToEndScenario(t *testing.T) {
	repo := newFakeRepo()
	c := newClient(repo)
	ctx := context.Background()
	owner := domain.Owner{ID: "u1", Name: "User One"}

	if err := c.PostTextStory(ctx, owner, "hello", "#112233", domain.PrivacyContacts); err != nil {
		t.Fatal(err)
	}
	c.Reload(ctx)

	got := c.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one story, got %d", len(got))
	}
	s := got[0]
	if s.ContentType != domain.ContentTypeText || s.Text != "hello" || len(s.Viewers) != 0 {
		t.Fatalf("unexpected story after reload: %+v", s)
	}
	if s.Privacy != domain.PrivacyContacts {
		t.Fatalf("privacy must pass through verbatim, got %q", s.Privacy)
	}

	if err := c.MarkViewed(ctx, s.ID, "v1", "Viewer One"); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkViewed(ctx, s.ID, "v1", "Viewer One"); err != nil {
		t.Fatal(err)
	}
	if got := c.Snapshot()[0].Viewers; len(got) != 1 {
		t.Fatalf("expected one viewer, got %d", len(got))
	}

	if err := c.DeleteStory(ctx, owner.ID, s.ID); err != nil {
		t.Fatal(err)
	}
	if len(c.Snapshot()) != 0 {
		t.Fatal("store must be empty after the owner deletes")
	}
}
