package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

// FallbackFingerprint is recorded when no forwarded client address is
// available. Shared NAT clients collide on the same fingerprint; this is
// a known limitation carried over from the deployed site.
const FallbackFingerprint = "unknown"

var (
	// ErrInvalidPostID indicates that a post identifier is empty or exceeds storage bounds.
	ErrInvalidPostID = errors.New("profile: invalid post id")
	// ErrInvalidFileID indicates that a file identifier is empty or exceeds storage bounds.
	ErrInvalidFileID = errors.New("profile: invalid file id")
)

// PostID represents a validated post identifier.
type PostID string

// NewPostID validates raw input and returns a PostID.
func NewPostID(rawInput string) (PostID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostID, maxIdentifierLength)
	}
	return PostID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PostID) String() string {
	return string(id)
}

// FileID represents a validated file identifier.
type FileID string

// NewFileID validates raw input and returns a FileID.
func NewFileID(rawInput string) (FileID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFileID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidFileID, maxIdentifierLength)
	}
	return FileID(trimmed), nil
}

// String returns the underlying string identifier.
func (id FileID) String() string {
	return string(id)
}

// Fingerprint identifies an anonymous viewer, derived from the forwarded
// client address of the request.
type Fingerprint string

// NewFingerprint normalizes a raw client address into a Fingerprint.
// An empty address maps to FallbackFingerprint rather than failing, so
// view and like handling keeps working behind misconfigured proxies.
func NewFingerprint(rawInput string) Fingerprint {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return Fingerprint(FallbackFingerprint)
	}
	return Fingerprint(trimmed)
}

// String returns the underlying fingerprint value.
func (f Fingerprint) String() string {
	return string(f)
}

// FileSource enumerates where an attachment is hosted.
type FileSource string

const (
	// FileSourceCatbox marks a file uploaded to the external catbox host.
	FileSourceCatbox FileSource = "catbox"
	// FileSourceLocal marks a file stored under the local assets directory.
	FileSourceLocal FileSource = "local"
)

// SiteStats holds the global, server-owned interaction counters.
type SiteStats struct {
	Posts     int      `json:"posts"`
	Likes     int      `json:"likes"`
	Comments  int      `json:"comments"`
	Views     int      `json:"views"`
	ViewedIPs []string `json:"viewedIps"`
}

// SocialLink is one entry of the profile's social row. Slice order is
// display order.
type SocialLink struct {
	Platform string `json:"platform" validate:"required,max=190"`
	URL      string `json:"url" validate:"max=2048"`
	Enabled  bool   `json:"enabled"`
	Icon     string `json:"icon,omitempty" validate:"max=2048"`
}

// DirectLink is a standalone button link on the public page.
type DirectLink struct {
	ID    string `json:"id" validate:"required,max=190"`
	Title string `json:"title" validate:"max=500"`
	URL   string `json:"url" validate:"max=2048"`
	Icon  string `json:"icon,omitempty" validate:"max=2048"`
}

// MusicTrack is one playlist entry for the page's music player.
type MusicTrack struct {
	ID       string `json:"id" validate:"required,max=190"`
	Title    string `json:"title" validate:"max=500"`
	Artist   string `json:"artist" validate:"max=500"`
	URL      string `json:"url" validate:"max=2048"`
	CoverURL string `json:"coverUrl,omitempty" validate:"max=2048"`
}

// Comment is a visitor or admin comment on a post. Replies reuse the
// same shape; the structure is recursive with no enforced depth cap.
type Comment struct {
	ID      string    `json:"id" validate:"required,max=190"`
	Author  string    `json:"author" validate:"max=500"`
	Content string    `json:"content"`
	Date    string    `json:"date" validate:"max=190"`
	Replies []Comment `json:"replies,omitempty" validate:"dive"`
}

// Post is a blog entry. Views and ViewedIPs are server-owned and survive
// any admin-submitted replacement; Likes and LikedIPs are admin-editable
// and also mutated by the public like toggle.
type Post struct {
	ID          string    `json:"id" validate:"required,max=190"`
	Title       string    `json:"title" validate:"max=500"`
	Content     string    `json:"content"`
	ImageURL    string    `json:"imageUrl,omitempty" validate:"max=2048"`
	Date        string    `json:"date" validate:"max=190"`
	Likes       int       `json:"likes"`
	Views       int       `json:"views"`
	LikedIPs    []string  `json:"likedIps,omitempty"`
	ViewedIPs   []string  `json:"viewedIps,omitempty"`
	Comments    []Comment `json:"comments" validate:"dive"`
	Attachments []string  `json:"attachments,omitempty"`
	Hidden      bool      `json:"hidden,omitempty"`
}

// File is a downloadable attachment. DownloadCount is server-owned.
type File struct {
	ID            string     `json:"id" validate:"required,max=190"`
	Name          string     `json:"name" validate:"max=500"`
	URL           string     `json:"url" validate:"max=2048"`
	DownloadCount int        `json:"downloadCount"`
	Source        FileSource `json:"source,omitempty"`
}

// Skill is one entry of the admin-curated skill list.
type Skill struct {
	ID         string `json:"id" validate:"required,max=190"`
	Name       string `json:"name" validate:"max=500"`
	Percentage int    `json:"percentage" validate:"min=0,max=100"`
	Type       string `json:"type,omitempty" validate:"max=190"`
}

// Project is a portfolio entry.
type Project struct {
	ID          string       `json:"id" validate:"required,max=190"`
	Title       string       `json:"title" validate:"max=500"`
	Description string       `json:"description"`
	ImageURL    string       `json:"imageUrl,omitempty" validate:"max=2048"`
	Link        string       `json:"link,omitempty" validate:"max=2048"`
	Links       []DirectLink `json:"links,omitempty" validate:"dive"`
	Tags        []string     `json:"tags,omitempty"`
	Hidden      bool         `json:"hidden,omitempty"`
}

// Document is the single persisted aggregate behind the profile page.
//
// The presentation-only configuration sections (theme, feature toggles,
// integrations and friends) are kept as raw JSON: the store has no
// invariants over them beyond preserving whatever fields the admin
// client submitted, including ones this build has never heard of.
type Document struct {
	Name       string  `json:"name" validate:"max=500"`
	AdminName  string  `json:"adminName,omitempty" validate:"max=500"`
	Role       string  `json:"role" validate:"max=500"`
	Location   string  `json:"location" validate:"max=500"`
	Skills     []Skill `json:"skills,omitempty" validate:"dive"`
	Timezone   string  `json:"timezone,omitempty" validate:"max=190"`
	TimeFormat string  `json:"timeFormat,omitempty" validate:"max=190"`
	Email      string  `json:"email" validate:"max=500"`
	DiscordID  string  `json:"discordId,omitempty" validate:"max=190"`
	UID        string  `json:"uid,omitempty" validate:"max=190"`
	AvatarURL  string  `json:"avatarUrl" validate:"max=2048"`
	BannerURL  string  `json:"bannerUrl" validate:"max=2048"`
	Bio        string  `json:"bio"`

	Stats SiteStats `json:"stats"`

	Socials     []SocialLink `json:"socials" validate:"dive"`
	DirectLinks []DirectLink `json:"directLinks" validate:"dive"`
	Files       []File       `json:"files,omitempty" validate:"dive"`
	Playlist    []MusicTrack `json:"playlist" validate:"dive"`
	Posts       []Post       `json:"posts" validate:"dive"`
	Projects    []Project    `json:"projects" validate:"dive"`

	Engagement    json.RawMessage `json:"engagement,omitempty"`
	MusicConfig   json.RawMessage `json:"musicConfig,omitempty"`
	Theme         json.RawMessage `json:"theme,omitempty"`
	Features      json.RawMessage `json:"features,omitempty"`
	EnterScreen   json.RawMessage `json:"enterScreen,omitempty"`
	TypewriterBio json.RawMessage `json:"typewriterBio,omitempty"`
	Cursor        json.RawMessage `json:"cursor,omitempty"`
	TextEffects   json.RawMessage `json:"textEffects,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Github        json.RawMessage `json:"github,omitempty"`
	Integrations  json.RawMessage `json:"integrations,omitempty"`
}

// Clone returns a deep copy of the document. The JSON round-trip keeps
// the copy honest across the raw configuration sections.
func (d Document) Clone() Document {
	data, err := json.Marshal(d)
	if err != nil {
		// Document contains only marshalable fields.
		panic(fmt.Sprintf("profile: clone marshal: %v", err))
	}
	var clone Document
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(fmt.Sprintf("profile: clone unmarshal: %v", err))
	}
	return clone
}

// FindPost returns a pointer into the document's post list, or nil.
func (d *Document) FindPost(id PostID) *Post {
	for i := range d.Posts {
		if d.Posts[i].ID == id.String() {
			return &d.Posts[i]
		}
	}
	return nil
}

// FindFile returns a pointer into the document's file list, or nil.
func (d *Document) FindFile(id FileID) *File {
	for i := range d.Files {
		if d.Files[i].ID == id.String() {
			return &d.Files[i]
		}
	}
	return nil
}

func containsFingerprint(list []string, fingerprint Fingerprint) bool {
	for _, entry := range list {
		if entry == fingerprint.String() {
			return true
		}
	}
	return false
}

func removeFingerprint(list []string, fingerprint Fingerprint) []string {
	filtered := make([]string, 0, len(list))
	for _, entry := range list {
		if entry != fingerprint.String() {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
