// Package api is the HTTP presentation adapter for the submission workflow.
// It translates requests into workflow calls and renders state snapshots; no
// validation or persistence logic lives here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"kycgate/internal/blobstore"
	"kycgate/internal/config"
	"kycgate/internal/model"
	"kycgate/internal/workflow"
)

// Server exposes the submission workflow over HTTP.
type Server struct {
	cfg       *config.Config
	sessions  *SessionStore
	submitter workflow.Submitter
	previews  workflow.PreviewEncoder
	local     *blobstore.Local // nil unless the local blob backend is active
	logger    *slog.Logger
	server    *http.Server
	once      sync.Once
}

// New constructs a Server. local may be nil when documents live in S3.
func New(cfg *config.Config, submitter workflow.Submitter, previews workflow.PreviewEncoder, local *blobstore.Local, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  NewSessionStore(),
		submitter: submitter,
		previews:  previews,
		local:     local,
		logger:    logger,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.routes(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSessionState)
			r.Delete("/", s.handleDismiss)
			r.Patch("/fields", s.handleSetFields)
			r.Post("/documents/{slot}", s.handleStageDocument)
			r.Post("/advance", s.handleAdvance)
			r.Post("/retreat", s.handleRetreat)
		})
	})
	if s.local != nil {
		r.Get("/download", s.handleDownload)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"ownerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" {
		respondError(w, http.StatusBadRequest, "ownerId is required")
		return
	}
	owner := req.OwnerID
	wf := workflow.New(owner, s.submitter, s.previews, s.logger, func(c workflow.Completion) {
		s.logger.Info("verification workflow completed",
			"owner_id", owner, "status", string(c.Status), "submitted_at", c.SubmittedAt)
	})
	id := s.sessions.Create(wf)
	respondJSON(w, http.StatusCreated, map[string]any{
		"sessionId": id,
		"step":      wf.State().StepName,
	})
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wf.State())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFields(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "expecting an object of field values")
		return
	}
	for name, value := range fields {
		if err := wf.SetField(name, value); err != nil {
			switch {
			case errors.Is(err, workflow.ErrBusy):
				respondError(w, http.StatusConflict, "submission in progress")
			case errors.Is(err, workflow.ErrUnknownField):
				respondError(w, http.StatusBadRequest, err.Error())
			default:
				respondError(w, http.StatusInternalServerError, "failed to update field")
			}
			return
		}
	}
	respondJSON(w, http.StatusOK, wf.State())
}

func (s *Server) handleStageDocument(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	slot, ok := parseSlot(chi.URLParam(r, "slot"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown document slot")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()
	blob, err := readBlob(part)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := wf.StageDocument(r.Context(), slot, blob); err != nil {
		var docErr *workflow.DocumentError
		switch {
		case errors.Is(err, workflow.ErrBusy):
			respondError(w, http.StatusConflict, "submission in progress")
		case errors.As(err, &docErr):
			respondError(w, http.StatusBadRequest, docErr.Message)
		default:
			respondError(w, http.StatusInternalServerError, "failed to stage document")
		}
		return
	}
	respondJSON(w, http.StatusOK, wf.State())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	_, err := wf.Advance(r.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, wf.State())
	case errors.Is(err, workflow.ErrBusy):
		respondError(w, http.StatusConflict, "submission in progress")
	case errors.Is(err, workflow.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "cannot advance from the current step")
	default:
		// Submission failed; the snapshot carries the user-facing message
		// and the staged draft stays intact for a retry.
		respondJSON(w, http.StatusBadGateway, wf.State())
	}
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.session(w, r)
	if !ok {
		return
	}
	_, err := wf.Retreat()
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, wf.State())
	case errors.Is(err, workflow.ErrBusy):
		respondError(w, http.StatusConflict, "submission in progress")
	default:
		respondError(w, http.StatusConflict, "cannot go back from the current step")
	}
}

// handleDownload serves locally stored documents behind signed, expiring
// URLs minted by the local blob backend's Resolve.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	object := r.URL.Query().Get("file")
	expires := r.URL.Query().Get("expires")
	signature := r.URL.Query().Get("signature")
	if object == "" || expires == "" || signature == "" {
		respondError(w, http.StatusBadRequest, "missing parameters")
		return
	}
	expiryUnix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expires")
		return
	}
	if time.Unix(expiryUnix, 0).Before(time.Now()) {
		respondError(w, http.StatusUnauthorized, "url expired")
		return
	}
	if !s.local.Signer().Validate(object, expires, signature) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	data, err := s.local.Open(object)
	if err != nil {
		respondError(w, http.StatusNotFound, "object not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*workflow.Workflow, bool) {
	id := chi.URLParam(r, "sessionID")
	wf, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return wf, true
}

func parseSlot(raw string) (model.DocumentSlot, bool) {
	switch model.DocumentSlot(raw) {
	case model.SlotAadhaar:
		return model.SlotAadhaar, true
	case model.SlotPAN:
		return model.SlotPAN, true
	default:
		return "", false
	}
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// readBlob drains a multipart file part into an in-memory FileBlob, sniffing
// the MIME type from the leading bytes like the download side does.
func readBlob(part *multipart.Part) (*model.FileBlob, error) {
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	mimeType := http.DetectContentType(sniff)
	if mimeType == "application/octet-stream" {
		if declared := part.Header.Get("Content-Type"); declared != "" {
			mimeType = declared
		}
	}
	name := part.FileName()
	if name == "" {
		name = "upload"
	}
	return &model.FileBlob{
		Bytes:        data,
		MimeType:     mimeType,
		SizeBytes:    int64(len(data)),
		OriginalName: name,
	}, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
