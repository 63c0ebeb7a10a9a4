package notestore

import "quill/internal/remote"

// NoteUpdate is a partial mutation with explicit deletion intent: fields in
// Set are assigned, fields in Clear are removed from the entity (and from
// the stored document), and everything else is left unchanged.
type NoteUpdate struct {
	Set   map[string]any
	Clear []string
}

// Fields returns every field name the update touches.
func (u NoteUpdate) Fields() []string {
	fields := make([]string, 0, len(u.Set)+len(u.Clear))
	for field := range u.Set {
		fields = append(fields, field)
	}
	fields = append(fields, u.Clear...)
	return fields
}

// IsEmpty reports whether the update carries no changes.
func (u NoteUpdate) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Clear) == 0
}

func (u NoteUpdate) remoteUpdate() remote.Update {
	set := make(map[string]any, len(u.Set))
	for field, value := range u.Set {
		set[field] = value
	}
	return remote.Update{Set: set, Remove: append([]string(nil), u.Clear...)}
}

func applyUpdate(note *Note, update NoteUpdate) {
	for field, value := range update.Set {
		setField(note, field, value)
	}
	for _, field := range update.Clear {
		clearField(note, field)
	}
}

func setField(note *Note, field string, value any) {
	switch field {
	case FieldTitle:
		note.Title = asString(value)
	case FieldType:
		note.Type = NoteType(asString(value))
	case FieldVerbatimText:
		note.VerbatimText = asString(value)
	case FieldAudioTranscript:
		note.AudioTranscript = asString(value)
	case FieldImageTranscript:
		note.ImageTranscript = asString(value)
	case FieldUserNotes:
		note.UserNotes = asString(value)
	case FieldSummaryText:
		note.SummaryText = asString(value)
	case FieldTags:
		note.Tags = normalizeTags(asStrings(value))
	case FieldMediaItems:
		if items, ok := value.([]MediaItem); ok {
			note.MediaItems = append([]MediaItem(nil), items...)
		}
	case FieldOriginalMediaURL:
		note.OriginalMediaURL = asString(value)
	case FieldFolderID:
		note.FolderID = asString(value)
	case FieldIsPinned:
		note.IsPinned = asBool(value)
	case FieldDriveFileID:
		note.DriveFileID = asString(value)
	case FieldCreatedAt:
		note.CreatedAtSeconds = asInt64(value)
	case FieldUpdatedAt:
		note.UpdatedAtSeconds = asInt64(value)
	case FieldDeletedAt:
		note.DeletedAtSeconds = asInt64(value)
	}
}

func clearField(note *Note, field string) {
	switch field {
	case FieldDeletedAt:
		note.DeletedAtSeconds = 0
	case FieldFolderID:
		note.FolderID = ""
	case FieldDriveFileID:
		note.DriveFileID = ""
	case FieldOriginalMediaURL:
		note.OriginalMediaURL = ""
	case FieldSummaryText:
		note.SummaryText = ""
	case FieldUserNotes:
		note.UserNotes = ""
	case FieldTags:
		note.Tags = nil
	}
}

// copyField carries the locally-edited value of one field from src into dst
// during a snapshot merge, shielding an unacknowledged write from the
// remote value.
func copyField(dst *Note, src Note, field string) {
	switch field {
	case FieldTitle:
		dst.Title = src.Title
	case FieldType:
		dst.Type = src.Type
	case FieldVerbatimText:
		dst.VerbatimText = src.VerbatimText
	case FieldAudioTranscript:
		dst.AudioTranscript = src.AudioTranscript
	case FieldImageTranscript:
		dst.ImageTranscript = src.ImageTranscript
	case FieldUserNotes:
		dst.UserNotes = src.UserNotes
	case FieldSummaryText:
		dst.SummaryText = src.SummaryText
	case FieldTags:
		dst.Tags = append([]string(nil), src.Tags...)
	case FieldMediaItems:
		dst.MediaItems = append([]MediaItem(nil), src.MediaItems...)
	case FieldOriginalMediaURL:
		dst.OriginalMediaURL = src.OriginalMediaURL
	case FieldFolderID:
		dst.FolderID = src.FolderID
	case FieldIsPinned:
		dst.IsPinned = src.IsPinned
	case FieldDriveFileID:
		dst.DriveFileID = src.DriveFileID
	case FieldCreatedAt:
		dst.CreatedAtSeconds = src.CreatedAtSeconds
	case FieldUpdatedAt:
		dst.UpdatedAtSeconds = src.UpdatedAtSeconds
	case FieldDeletedAt:
		dst.DeletedAtSeconds = src.DeletedAtSeconds
	}
}

func asString(value any) string {
	s, _ := value.(string)
	if s == "" {
		if typed, ok := value.(NoteType); ok {
			return string(typed)
		}
	}
	return s
}

func asBool(value any) bool {
	b, _ := value.(bool)
	return b
}

func asInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	}
	return 0
}

func asStrings(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
