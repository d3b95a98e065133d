package domain

import (
	"errors"
	"time"
)

// ContentType identifies the payload variant of a story.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
)

// Privacy is the visibility scope attached to a story at creation time.
// It is an opaque tag: the engine passes it through verbatim and never
// filters on it.
type Privacy string

const (
	PrivacyEveryone Privacy = "everyone"
	PrivacyContacts Privacy = "contacts"
)

// Owner is the denormalized owner snapshot taken when a story is created.
type Owner struct {
	ID        string
	Name      string
	AvatarURL string
}

// Viewer records that a user identity has observed a story.
type Viewer struct {
	ID       string
	Name     string
	ViewedAt time.Time
}

// Story is a single ephemeral post. Exactly one payload variant is set:
// Text+BackgroundHex for text stories, MediaURL for image/video stories.
// Viewers is append-only and holds at most one entry per viewer identity.
type Story struct {
	ID             string
	OwnerID        string
	OwnerName      string
	OwnerAvatarURL string
	ContentType    ContentType
	Text           string
	BackgroundHex  string
	MediaURL       string
	Privacy        Privacy
	CreatedAt      time.Time
	Viewers        []Viewer
}

var ErrInvalidPayload = errors.New("story payload does not match content type")

// Validate checks the payload-variant invariant.
func (s *Story) Validate() error {
	switch s.ContentType {
	case ContentTypeText:
		if s.Text == "" || s.MediaURL != "" {
			return ErrInvalidPayload
		}
	case ContentTypeImage, ContentTypeVideo:
		if s.MediaURL == "" || s.Text != "" {
			return ErrInvalidPayload
		}
	default:
		return ErrInvalidPayload
	}
	return nil
}

// HasViewer reports whether the given viewer identity already appears in
// the viewer list.
func (s *Story) HasViewer(viewerID string) bool {
	for _, v := range s.Viewers {
		if v.ID == viewerID {
			return true
		}
	}
	return false
}

// ViewerCount returns the number of distinct viewers.
func (s *Story) ViewerCount() int {
	return len(s.Viewers)
}

// Clone returns a deep copy so callers can hand stories out without
// aliasing the viewer slice.
func (s Story) Clone() Story {
	out := s
	if s.Viewers != nil {
		out.Viewers = make([]Viewer, len(s.Viewers))
		copy(out.Viewers, s.Viewers)
	}
	return out
}
