package editor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"render-studio/internal/canvas"
	"render-studio/internal/gemini"
	"render-studio/internal/history"
	"render-studio/internal/imaging"
	"render-studio/internal/mask"
	"render-studio/internal/prompt"
)

// State names the session lifecycle phase.
type State string

const (
	StateEmpty      State = "empty"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
)

// EditService is the boundary to the external generative edit call.
type EditService interface {
	EditImage(ctx context.Context, req gemini.EditRequest) (string, error)
}

type SessionOptions struct {
	Service    EditService
	History    history.Store
	HistoryKey string
	RenderType prompt.RenderType
	Logger     *slog.Logger
	// Now is the clock used for history IDs and timestamps; defaults to time.Now.
	Now func() time.Time
}

// Session owns one loaded source image, its mask drawing state, and the undo
// stack, and orchestrates edit round-trips. All mutators are safe for
// concurrent use; drawing and undo stay available while a submission is in
// flight since they touch independent local state.
type Session struct {
	ID string

	mu         sync.Mutex
	pair       *canvas.Pair
	stack      Stack
	source     imaging.SourceImage
	reference  *imaging.SourceImage
	promptText string
	result     string
	submitting bool
	// epoch increments whenever the source is replaced, so a submission that
	// resolves after a swap can tell its result belongs to a prior source.
	epoch uint64

	svc        EditService
	store      history.Store
	historyKey string
	renderType prompt.RenderType
	logger     *slog.Logger
	now        func() time.Time
}

func NewSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	historyKey := opts.HistoryKey
	if historyKey == "" {
		historyKey = "image-editor"
	}

	renderType := opts.RenderType
	if renderType == "" {
		renderType = prompt.RenderExterior
	}

	return &Session{
		ID:         uuid.NewString(),
		pair:       canvas.NewPair(),
		svc:        opts.Service,
		store:      opts.History,
		historyKey: historyKey,
		renderType: renderType,
		logger:     logger,
		now:        now,
	}
}

// LoadSource begins a session (or restarts it with a new image): sizes both
// canvas layers to the image's natural dimensions and discards the mask,
// undo history, result, and reference from any previous source.
func (s *Session) LoadSource(src imaging.SourceImage) error {
	rgba, err := imaging.Decode(src)
	if err != nil {
		return &DecodeError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair.Load(rgba)
	s.stack.Clear()
	s.source = src
	s.reference = nil
	s.result = ""
	s.epoch++
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.submitting:
		return StateSubmitting
	case s.source.IsZero():
		return StateEmpty
	default:
		return StateReady
	}
}

// Info is a read-only view of the session for the UI.
type Info struct {
	ID          string `json:"id"`
	State       State  `json:"state"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	StrokeCount int    `json:"strokeCount"`
	Prompt      string `json:"prompt"`
	HasResult   bool   `json:"hasResult"`
	RenderType  string `json:"renderType"`
}

func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := StateReady
	switch {
	case s.submitting:
		state = StateSubmitting
	case s.source.IsZero():
		state = StateEmpty
	}

	w, h := s.pair.Size()
	return Info{
		ID:          s.ID,
		State:       state,
		Width:       w,
		Height:      h,
		StrokeCount: s.stack.Len(),
		Prompt:      s.promptText,
		HasResult:   s.result != "",
		RenderType:  string(s.renderType),
	}
}

func (s *Session) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stroke paints one complete freehand path given in display coordinates,
// then captures a snapshot onto the undo stack.
func (s *Session) Stroke(v canvas.Viewport, brushWidth float64, points []canvas.Point) error {
	if len(points) == 0 {
		return &ValidationError{Reason: "stroke has no points"}
	}
	if brushWidth <= 0 {
		return &ValidationError{Reason: "brush width must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pair.Loaded() {
		return &ValidationError{Reason: "no source image loaded"}
	}

	nativeWidth, err := s.pair.MapBrushWidth(v, brushWidth)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	first, err := s.pair.MapPoint(v, points[0].X, points[0].Y)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if err := s.pair.BeginStroke(first, nativeWidth); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	for _, pt := range points[1:] {
		native, err := s.pair.MapPoint(v, pt.X, pt.Y)
		if err != nil {
			return &ValidationError{Reason: err.Error()}
		}
		s.pair.ExtendStroke(native)
	}

	if snap := s.pair.EndStroke(); snap != nil {
		s.stack.Push(snap)
	}
	return nil
}

// Undo removes the last stroke and repaints the drawing layer from the new
// top snapshot (or clears it when none remain). A no-op on an empty stack.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	top, ok := s.stack.Undo()
	if !ok {
		return false
	}
	s.pair.Restore(top)
	return true
}

// ClearMask resets the selection: empties the undo stack and the overlay.
func (s *Session) ClearMask() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stack.Clear()
	s.pair.ClearOverlay()
}

// MaskImage composites the current drawing layer into the binary mask.
func (s *Session) MaskImage() (imaging.SourceImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compositeMaskLocked()
}

func (s *Session) compositeMaskLocked() (imaging.SourceImage, error) {
	out, err := mask.Composite(s.pair.Overlay())
	if err != nil {
		return imaging.SourceImage{}, &MaskError{Err: err}
	}
	return out, nil
}

// SubmitEdit runs one edit round-trip. On success the result is stored, one
// history item is appended, and the mask and undo stack are left untouched so
// the same selection can be refined and resubmitted. On failure the session
// is bit-for-bit unchanged.
func (s *Session) SubmitEdit(ctx context.Context, instruction string, reference *imaging.SourceImage) (history.Item, error) {
	s.mu.Lock()

	if s.source.IsZero() {
		s.mu.Unlock()
		return history.Item{}, &ValidationError{Reason: "no source image loaded"}
	}
	trimmed := strings.TrimSpace(instruction)
	if trimmed == "" {
		s.mu.Unlock()
		return history.Item{}, &ValidationError{Reason: "prompt is empty"}
	}
	if s.submitting {
		s.mu.Unlock()
		return history.Item{}, ErrSubmissionInFlight
	}

	maskImage, err := s.compositeMaskLocked()
	if err != nil {
		s.mu.Unlock()
		return history.Item{}, err
	}
	if !mask.Painted(s.pair.Overlay()) {
		s.mu.Unlock()
		return history.Item{}, &ValidationError{Reason: "no editable region selected"}
	}

	source := s.source
	renderType := s.renderType
	epoch := s.epoch
	s.submitting = true
	s.mu.Unlock()

	fullPrompt := prompt.MaskedEdit(trimmed, renderType, reference != nil)
	result, svcErr := s.svc.EditImage(ctx, gemini.EditRequest{
		Source:    source,
		Mask:      maskImage,
		Prompt:    fullPrompt,
		Reference: reference,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false

	if svcErr != nil {
		s.logger.Error("edit submission failed", "session", s.ID, "err", svcErr)
		return history.Item{}, &ServiceError{Err: svcErr}
	}
	if result == "" {
		return history.Item{}, &ServiceError{Err: fmt.Errorf("empty result from edit service")}
	}

	createdAt := s.now()
	item := history.Item{
		ID:             createdAt.UnixMilli(),
		Timestamp:      createdAt.Format("2006-01-02 15:04:05"),
		SourceImage:    source,
		MaskImage:      maskImage,
		ReferenceImage: reference,
		Prompt:         trimmed,
		ResultImage:    result,
	}

	if s.store != nil {
		if err := s.store.Append(ctx, s.historyKey, item); err != nil {
			// Either the whole item lands or the session stays as it was.
			return history.Item{}, fmt.Errorf("record edit: %w", err)
		}
	}

	if s.epoch != epoch {
		// The source was replaced while the call was in flight. The completed
		// edit is recorded, but its result is not applied to the new source.
		s.logger.Warn("source replaced during edit", "session", s.ID, "history_id", item.ID)
		return item, nil
	}

	s.result = result
	s.promptText = trimmed
	s.reference = reference
	s.logger.Info("edit completed", "session", s.ID, "history_id", item.ID)
	return item, nil
}

// ContinueEditing chains the prior result into a fresh session source. The
// drawing history and reference are scoped to the previous edit and cleared;
// a new mask must be drawn for the new source.
func (s *Session) ContinueEditing() error {
	s.mu.Lock()
	result := s.result
	s.mu.Unlock()

	if result == "" {
		return &ValidationError{Reason: "no result to continue from"}
	}

	src, err := imaging.FromDataURL(result)
	if err != nil {
		return &DecodeError{Err: err}
	}
	return s.LoadSource(src)
}

// Restore replaces the session's source, prompt, result, and reference with a
// stored history item's values. The stroke-level drawing history is not
// redrawable from a flattened record and starts empty.
func (s *Session) Restore(item history.Item) error {
	rgba, err := imaging.Decode(item.SourceImage)
	if err != nil {
		return &DecodeError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair.Load(rgba)
	s.stack.Clear()
	s.source = item.SourceImage
	s.promptText = item.Prompt
	s.result = item.ResultImage
	s.reference = item.ReferenceImage
	s.epoch++
	return nil
}
