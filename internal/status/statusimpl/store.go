package statusimpl

import (
	"sort"

	"github.com/orgball2608/story-sync-engine/internal/domain"
)

// storyStore is the session's story cache. It is owned by StatusImpl and
// only touched while StatusImpl.mu is held.
//
// Every local mutation bumps seq and stamps the touched entry with it.
// A reload captures seq at issue time; when its snapshot comes back, any
// entry or tombstone stamped after that capture outranks the snapshot.
// That keeps a racing post, view or delete from being clobbered by a
// stale fetch.
type storyStore struct {
	entries map[string]*entry
	deleted map[string]uint64
	seq     uint64
}

type entry struct {
	story domain.Story
	seq   uint64
}

func newStoryStore() *storyStore {
	return &storyStore{
		entries: map[string]*entry{},
		deleted: map[string]uint64{},
	}
}

func (st *storyStore) bump() uint64 {
	st.seq++
	return st.seq
}

func (st *storyStore) get(id string) *entry {
	return st.entries[id]
}

func (st *storyStore) insert(s domain.Story) {
	st.entries[s.ID] = &entry{story: s.Clone(), seq: st.bump()}
	delete(st.deleted, s.ID)
}

func (st *storyStore) appendViewer(id string, v domain.Viewer) {
	e := st.entries[id]
	if e == nil || e.story.HasViewer(v.ID) {
		return
	}
	e.story.Viewers = append(e.story.Viewers, v)
	e.seq = st.bump()
}

func (st *storyStore) remove(id string) {
	if _, ok := st.entries[id]; !ok {
		return
	}
	delete(st.entries, id)
	st.deleted[id] = st.bump()
}

// applySnapshot merges a reload result into the store. baseSeq is the
// mutation sequence captured when the reload was issued: entries mutated
// after it win over the snapshot (union of viewers, local stories kept,
// local deletions honored).
func (st *storyStore) applySnapshot(snapshot []domain.Story, baseSeq uint64) {
	next := make(map[string]*entry, len(snapshot))

	for _, s := range snapshot {
		if delSeq, ok := st.deleted[s.ID]; ok && delSeq > baseSeq {
			continue
		}
		merged := s.Clone()
		if local := st.entries[s.ID]; local != nil && local.seq > baseSeq {
			// Union the viewer lists so an optimistic view recorded during
			// the fetch is neither lost nor duplicated.
			for _, v := range local.story.Viewers {
				if !merged.HasViewer(v.ID) {
					merged.Viewers = append(merged.Viewers, v)
				}
			}
			next[s.ID] = &entry{story: merged, seq: local.seq}
			continue
		}
		next[s.ID] = &entry{story: merged, seq: baseSeq}
	}

	// Stories created locally while the fetch was in flight are not in the
	// snapshot yet; keep them until a later reload confirms either way.
	for id, local := range st.entries {
		if _, ok := next[id]; ok {
			continue
		}
		if local.seq > baseSeq {
			next[id] = local
		}
	}

	// Tombstones the snapshot already reflects are done.
	for id, delSeq := range st.deleted {
		if delSeq <= baseSeq {
			delete(st.deleted, id)
		}
	}

	st.entries = next
}

// list returns deep copies sorted newest first.
func (st *storyStore) list() []domain.Story {
	out := make([]domain.Story, 0, len(st.entries))
	for _, e := range st.entries {
		out = append(out, e.story.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
