package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"render-studio/internal/canvas"
	"render-studio/internal/editor"
	"render-studio/internal/history"
	"render-studio/internal/imaging"
	"render-studio/internal/prompt"
)

// Generator produces fresh renders from a text prompt alone.
type Generator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]string, error)
}

type Options struct {
	Registry       *editor.Registry
	Service        editor.EditService
	Generator      Generator
	History        history.Store
	HistoryKey     string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Handler struct {
	registry       *editor.Registry
	svc            editor.EditService
	gen            Generator
	store          history.Store
	historyKey     string
	maxUploadBytes int64
	requestTimeout time.Duration
	logger         *slog.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}

	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 240 * time.Second
	}

	historyKey := opts.HistoryKey
	if historyKey == "" {
		historyKey = "image-editor"
	}

	return &Handler{
		registry:       opts.Registry,
		svc:            opts.Service,
		gen:            opts.Generator,
		store:          opts.History,
		historyKey:     historyKey,
		maxUploadBytes: maxUpload,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Post("/strokes", h.postStroke)
			r.Post("/undo", h.postUndo)
			r.Post("/clear", h.postClear)
			r.Get("/mask", h.getMask)
			r.Post("/edit", h.postEdit)
			r.Post("/continue", h.postContinue)
			r.Post("/restore", h.postRestore)
		})
		r.Post("/generate", h.postGenerate)
		r.Get("/history", h.listHistory)
		r.Delete("/history/{historyID}", h.deleteHistory)
	})

	return r
}

type apiError struct {
	Error string `json:"error"`
}

type sessionCreated struct {
	ID     string       `json:"id"`
	State  editor.State `json:"state"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
}

type strokeRequest struct {
	DisplayWidth  float64        `json:"displayWidth"`
	DisplayHeight float64        `json:"displayHeight"`
	BrushWidth    float64        `json:"brushWidth"`
	Points        []canvas.Point `json:"points"`
}

type editRequest struct {
	Prompt           string `json:"prompt"`
	ReferenceDataURL string `json:"referenceDataURL,omitempty"`
}

type editResponse struct {
	ResultDataURL string `json:"resultDataURL"`
	HistoryID     int64  `json:"historyID"`
	Timestamp     string `json:"timestamp"`
}

type restoreRequest struct {
	HistoryID int64 `json:"historyID"`
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generateResponse struct {
	Images []string `json:"images"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var (
		src        imaging.SourceImage
		renderType string
		err        error
	)

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
			return
		}
		src, err = h.readImageFile(r, "image")
		renderType = strings.TrimSpace(r.FormValue("renderType"))
	} else {
		var body struct {
			ImageDataURL string `json:"imageDataURL"`
			RenderType   string `json:"renderType"`
		}
		if decodeErr := json.NewDecoder(io.LimitReader(r.Body, h.maxUploadBytes)).Decode(&body); decodeErr != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
			return
		}
		src, err = imaging.FromDataURL(body.ImageDataURL)
		renderType = body.RenderType
	}
	if err != nil {
		h.writeError(w, &editor.DecodeError{Err: err})
		return
	}

	sess := editor.NewSession(editor.SessionOptions{
		Service:    h.svc,
		History:    h.store,
		HistoryKey: h.historyKey,
		RenderType: prompt.ParseRenderType(renderType),
		Logger:     h.logger,
	})
	if err := sess.LoadSource(src); err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.Put(sess)

	writeJSON(w, http.StatusCreated, sessionCreated{
		ID:     sess.ID,
		State:  sess.State(),
		Width:  src.Width,
		Height: src.Height,
	})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) postStroke(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req strokeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return
	}

	err := sess.Stroke(canvas.Viewport{
		DisplayWidth:  req.DisplayWidth,
		DisplayHeight: req.DisplayHeight,
	}, req.BrushWidth, req.Points)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) postUndo(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Undo()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) postClear(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ClearMask()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) getMask(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	maskImage, err := sess.MaskImage()
	if err != nil {
		h.writeError(w, err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(maskImage.Base64)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("content-type", maskImage.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *Handler) postEdit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var (
		instruction string
		reference   *imaging.SourceImage
	)

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
			return
		}
		instruction = r.FormValue("prompt")

		ref, err := h.readImageFile(r, "reference")
		switch {
		case err == nil:
			reference = &ref
		case errors.Is(err, http.ErrMissingFile):
		default:
			h.writeError(w, &editor.DecodeError{Err: err})
			return
		}
	} else {
		var req editRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUploadBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
			return
		}
		instruction = req.Prompt
		if req.ReferenceDataURL != "" {
			ref, err := imaging.FromDataURL(req.ReferenceDataURL)
			if err != nil {
				h.writeError(w, &editor.DecodeError{Err: err})
				return
			}
			reference = &ref
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	item, err := sess.SubmitEdit(ctx, instruction, reference)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, editResponse{
		ResultDataURL: item.ResultImage,
		HistoryID:     item.ID,
		Timestamp:     item.Timestamp,
	})
}

func (h *Handler) postContinue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.ContinueEditing(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) postRestore(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return
	}

	item, err := h.store.Get(r.Context(), h.historyKey, req.HistoryID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.Restore(item); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) postGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.writeError(w, &editor.ValidationError{Reason: "prompt is empty"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	images, err := h.gen.GenerateImage(ctx, req.Prompt, req.AspectRatio)
	if err != nil {
		h.writeError(w, &editor.ServiceError{Err: err})
		return
	}
	if len(images) == 0 {
		h.writeError(w, &editor.ServiceError{Err: errors.New("no image generated")})
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{Images: images})
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	items, err := h.store.List(r.Context(), h.historyKey, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []history.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) deleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "historyID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid history id"})
		return
	}

	if err := h.store.Delete(r.Context(), h.historyKey, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := h.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "session not found or expired"})
		return nil, false
	}
	return sess, true
}

func (h *Handler) readImageFile(r *http.Request, field string) (imaging.SourceImage, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return imaging.SourceImage{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return imaging.SourceImage{}, err
	}
	return imaging.FromBytes(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *editor.ValidationError
		maskErr       *editor.MaskError
		serviceErr    *editor.ServiceError
		decodeErr     *editor.DecodeError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &maskErr):
		status = http.StatusConflict
	case errors.Is(err, editor.ErrSubmissionInFlight):
		status = http.StatusConflict
	case errors.As(err, &serviceErr):
		status = http.StatusBadGateway
	case errors.As(err, &decodeErr):
		status = http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, apiError{Error: err.Error()})
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
