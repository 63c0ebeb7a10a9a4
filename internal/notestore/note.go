package notestore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"quill/internal/remote"
)

// NoteType enumerates the capture source of a note.
type NoteType string

const (
	NoteTypeText  NoteType = "text"
	NoteTypeAudio NoteType = "audio"
	NoteTypeImage NoteType = "image"
)

// MaxTags bounds the tag set per note.
const MaxTags = 10

// Remote field names. These are the keys of the stored document and the
// granularity at which pending-write protection operates.
const (
	FieldTitle            = "title"
	FieldType             = "type"
	FieldVerbatimText     = "verbatimText"
	FieldAudioTranscript  = "audioTranscript"
	FieldImageTranscript  = "imageTranscript"
	FieldUserNotes        = "userNotes"
	FieldSummaryText      = "summaryText"
	FieldTags             = "tags"
	FieldMediaItems       = "mediaItems"
	FieldOriginalMediaURL = "originalMediaUrl"
	FieldFolderID         = "folderId"
	FieldIsPinned         = "isPinned"
	FieldDriveFileID      = "driveFileId"
	FieldCreatedAt        = "createdAt"
	FieldUpdatedAt        = "updatedAt"
	FieldDeletedAt        = "deletedAt"
)

// MediaItem is one captured recording or image attached to a note. The
// sequence on a note is append-only.
type MediaItem struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	URL              string `json:"url"`
	CreatedAtSeconds int64  `json:"createdAt"`
}

// Note is the central entity. Timestamps are unix seconds; a zero
// DeletedAtSeconds means the note is not in the trash, and zero-valued
// optional strings mean the field is absent from the stored document.
type Note struct {
	ID               string      `json:"-"`
	Title            string      `json:"title"`
	Type             NoteType    `json:"type"`
	VerbatimText     string      `json:"verbatimText,omitempty"`
	AudioTranscript  string      `json:"audioTranscript,omitempty"`
	ImageTranscript  string      `json:"imageTranscript,omitempty"`
	UserNotes        string      `json:"userNotes,omitempty"`
	SummaryText      string      `json:"summaryText,omitempty"`
	Tags             []string    `json:"tags"`
	MediaItems       []MediaItem `json:"mediaItems,omitempty"`
	OriginalMediaURL string      `json:"originalMediaUrl,omitempty"`
	FolderID         string      `json:"folderId,omitempty"`
	IsPinned         bool        `json:"isPinned"`
	DriveFileID      string      `json:"driveFileId,omitempty"`
	CreatedAtSeconds int64       `json:"createdAt"`
	UpdatedAtSeconds int64       `json:"updatedAt"`
	DeletedAtSeconds int64       `json:"deletedAt,omitempty"`

	// IsProcessing reflects an in-flight AI operation. It is session-local:
	// never persisted remotely, and reset to false on every remote read.
	IsProcessing bool `json:"-"`
}

// IsDeleted reports whether the note is soft-deleted.
func (n Note) IsDeleted() bool {
	return n.DeletedAtSeconds > 0
}

// Transcript returns the transcript text used as AI input, preferring the
// verbatim text over the per-source transcripts.
func (n Note) Transcript() string {
	if strings.TrimSpace(n.VerbatimText) != "" {
		return n.VerbatimText
	}
	parts := make([]string, 0, 2)
	if strings.TrimSpace(n.AudioTranscript) != "" {
		parts = append(parts, n.AudioTranscript)
	}
	if strings.TrimSpace(n.ImageTranscript) != "" {
		parts = append(parts, n.ImageTranscript)
	}
	return strings.Join(parts, "\n")
}

// ToDocument converts the note to its remote field map. Unset optional
// fields are absent, not null; IsProcessing is never included.
func (n Note) ToDocument() (remote.Document, error) {
	encoded, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("notestore: encode note %s: %w", n.ID, err)
	}
	doc := remote.Document{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("notestore: decode note %s: %w", n.ID, err)
	}
	return doc, nil
}

// NoteFromSnapshot decodes a remote snapshot into a note. IsProcessing is
// forced false so a transient flag can never arrive stuck true from a
// reload or reconnect.
func NoteFromSnapshot(snapshot remote.Snapshot) (Note, error) {
	encoded, err := json.Marshal(snapshot.Fields)
	if err != nil {
		return Note{}, fmt.Errorf("notestore: encode snapshot %s: %w", snapshot.ID, err)
	}
	var note Note
	if err := json.Unmarshal(encoded, &note); err != nil {
		return Note{}, fmt.Errorf("notestore: decode snapshot %s: %w", snapshot.ID, err)
	}
	note.ID = snapshot.ID
	note.IsProcessing = false
	note.Tags = normalizeTags(note.Tags)
	return note, nil
}

// normalizeTags case-folds, trims, drops empties and duplicates, and caps the
// set at MaxTags.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		folded := strings.ToLower(strings.TrimSpace(tag))
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		normalized = append(normalized, folded)
		if len(normalized) == MaxTags {
			break
		}
	}
	return normalized
}

// sortNotes orders notes by creation time, newest first. Ties break on id so
// snapshot merges are deterministic.
func sortNotes(notes []Note) []Note {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAtSeconds != notes[j].CreatedAtSeconds {
			return notes[i].CreatedAtSeconds > notes[j].CreatedAtSeconds
		}
		return notes[i].ID > notes[j].ID
	})
	return notes
}
