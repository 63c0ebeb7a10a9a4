package notestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quill/internal/document"
)

var (
	// ErrNothingToSummarize rejects summarization of a note with no
	// transcript and no user notes.
	ErrNothingToSummarize = errors.New("notestore: cannot summarize an empty note")
	// ErrNothingToRefine rejects refinement when no summary exists yet.
	ErrNothingToRefine = errors.New("notestore: no summary to refine")

	errMissingStore = errors.New("note store is required")
	errMissingAI    = errors.New("ai client is required")
)

// DefaultTitle is used when title generation fails or yields nothing.
const DefaultTitle = "Untitled"

// AIClient is the slice of the AI backend the processing pipeline consumes.
// Every method is a fallible remote call; retry policy lives behind the
// implementation, not here.
type AIClient interface {
	TranscribeAudio(ctx context.Context, base64Data, mimeType string) (string, error)
	TranscribeImage(ctx context.Context, base64Data, mimeType string) (string, error)
	GenerateSummary(ctx context.Context, transcript, userNotes string) (string, error)
	GenerateTitle(ctx context.Context, text string) (string, error)
	GenerateTags(ctx context.Context, summary, title string) ([]string, error)
	RefineSummary(ctx context.Context, currentSummary, instruction string) (string, error)
}

// ProcessorConfig wires the processing pipeline.
type ProcessorConfig struct {
	Store  *Store
	AI     AIClient
	Logger *zap.Logger
}

// Processor runs the capture → transcribe → summarize → title → tags
// pipeline on top of the store. Unlike store mutations, its methods return
// errors: an explicit user-initiated AI action must report failure.
type Processor struct {
	store  *Store
	ai     AIClient
	logger *zap.Logger
}

// NewProcessor constructs a processor, validating its dependencies.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opProcessCapture, "missing_store", errMissingStore)
	}
	if cfg.AI == nil {
		return nil, newServiceError(opProcessCapture, "missing_ai_client", errMissingAI)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Processor{store: cfg.Store, ai: cfg.AI, logger: logger}, nil
}

// Capture describes one recorded audio clip or captured image to fold into
// an existing note.
type Capture struct {
	NoteID     string
	Kind       NoteType
	Base64Data string
	MIMEType   string
	MediaURL   string
}

// ProcessCapture transcribes the capture, appends the transcript and media
// item to the note, and runs the summarization pipeline. The note's
// processing flag is set for the duration and cleared on every exit path.
func (p *Processor) ProcessCapture(ctx context.Context, capture Capture) error {
	note, ok := p.store.Note(capture.NoteID)
	if !ok {
		return newServiceError(opProcessCapture, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, capture.NoteID))
	}

	p.setProcessing(capture.NoteID, true)
	defer p.setProcessing(capture.NoteID, false)

	var transcript string
	var transcriptField string
	var err error
	switch capture.Kind {
	case NoteTypeAudio:
		transcript, err = p.ai.TranscribeAudio(ctx, capture.Base64Data, capture.MIMEType)
		transcriptField = FieldAudioTranscript
	case NoteTypeImage:
		transcript, err = p.ai.TranscribeImage(ctx, capture.Base64Data, capture.MIMEType)
		transcriptField = FieldImageTranscript
	default:
		return newServiceError(opProcessCapture, "invalid_kind", fmt.Errorf("%w: %q", ErrUnknownNoteType, capture.Kind))
	}
	if err != nil {
		return newServiceError(opProcessCapture, "transcription_failed", err)
	}

	mediaID, err := p.store.idProvider.NewID()
	if err != nil {
		return newServiceError(opProcessCapture, "id_generation_failed", err)
	}
	item := MediaItem{
		ID:               mediaID,
		Type:             string(capture.Kind),
		URL:              capture.MediaURL,
		CreatedAtSeconds: p.store.clock().UTC().Unix(),
	}

	set := map[string]any{
		transcriptField:   appendTranscript(sourceTranscript(note, capture.Kind), transcript),
		FieldVerbatimText: appendTranscript(note.VerbatimText, transcript),
		FieldMediaItems:   append(append([]MediaItem(nil), note.MediaItems...), item),
	}
	if capture.MediaURL != "" {
		set[FieldOriginalMediaURL] = capture.MediaURL
	}
	if err := p.store.Update(ctx, capture.NoteID, NoteUpdate{Set: set}); err != nil {
		return newServiceError(opProcessCapture, "update_failed", err)
	}

	return p.summarize(ctx, capture.NoteID)
}

// Summarize runs summary, title, and tag generation for the note and stores
// the results. Title failures fall back to a default and are logged only;
// summary and tag failures propagate.
func (p *Processor) Summarize(ctx context.Context, noteID string) error {
	if _, ok := p.store.Note(noteID); !ok {
		return newServiceError(opGenerateSummary, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, noteID))
	}
	p.setProcessing(noteID, true)
	defer p.setProcessing(noteID, false)
	return p.summarize(ctx, noteID)
}

func (p *Processor) summarize(ctx context.Context, noteID string) error {
	note, ok := p.store.Note(noteID)
	if !ok {
		return newServiceError(opGenerateSummary, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, noteID))
	}

	transcript := note.Transcript()
	userNotes := document.ToPlainText(note.UserNotes)
	if strings.TrimSpace(transcript) == "" && strings.TrimSpace(userNotes) == "" {
		return newServiceError(opGenerateSummary, "empty_note", ErrNothingToSummarize)
	}

	summary, err := p.ai.GenerateSummary(ctx, transcript, userNotes)
	if err != nil {
		return newServiceError(opGenerateSummary, "summary_failed", err)
	}

	title := p.titleFor(ctx, note, summary)

	tags, err := p.ai.GenerateTags(ctx, summary, title)
	if err != nil {
		return newServiceError(opGenerateSummary, "tags_failed", err)
	}

	return p.store.Update(ctx, noteID, NoteUpdate{Set: map[string]any{
		FieldSummaryText: summary,
		FieldTitle:       title,
		FieldTags:        normalizeTags(tags),
	}})
}

// titleFor keeps an existing user-chosen title and otherwise asks the AI for
// one, defaulting on any failure. Title generation never surfaces an error.
func (p *Processor) titleFor(ctx context.Context, note Note, summary string) string {
	existing := strings.TrimSpace(note.Title)
	if existing != "" && existing != DefaultTitle {
		return note.Title
	}
	source := summary
	if strings.TrimSpace(source) == "" {
		source = note.Transcript()
	}
	title, err := p.ai.GenerateTitle(ctx, source)
	if err != nil || strings.TrimSpace(title) == "" {
		p.logger.Warn("title generation failed, using default",
			zap.String("note_id", note.ID),
			zap.Error(err))
		return DefaultTitle
	}
	return strings.TrimSpace(title)
}

// Refine rewrites the existing summary according to the instruction.
func (p *Processor) Refine(ctx context.Context, noteID, instruction string) error {
	note, ok := p.store.Note(noteID)
	if !ok {
		return newServiceError(opRefineSummary, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, noteID))
	}
	if strings.TrimSpace(note.SummaryText) == "" {
		return newServiceError(opRefineSummary, "empty_summary", ErrNothingToRefine)
	}

	p.setProcessing(noteID, true)
	defer p.setProcessing(noteID, false)

	refined, err := p.ai.RefineSummary(ctx, note.SummaryText, instruction)
	if err != nil {
		return newServiceError(opRefineSummary, "refine_failed", err)
	}
	return p.store.Update(ctx, noteID, NoteUpdate{Set: map[string]any{FieldSummaryText: refined}})
}

func (p *Processor) setProcessing(noteID string, processing bool) {
	p.store.mu.Lock()
	p.store.setProcessingLocked(noteID, processing)
	p.store.mu.Unlock()
}

func sourceTranscript(note Note, kind NoteType) string {
	if kind == NoteTypeImage {
		return note.ImageTranscript
	}
	return note.AudioTranscript
}

func appendTranscript(existing, addition string) string {
	if strings.TrimSpace(existing) == "" {
		return addition
	}
	if strings.TrimSpace(addition) == "" {
		return existing
	}
	return existing + "\n\n" + addition
}
