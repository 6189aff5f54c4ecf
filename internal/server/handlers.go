package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/rodin-studio/internal/generate"
	"github.com/fpang/rodin-studio/internal/imaging"
	"github.com/fpang/rodin-studio/internal/prompt"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// maxUploadBytes bounds the multipart form held in memory per submission.
const maxUploadBytes = 64 << 20

// thumbnailMaxDimension is the preview size served to the browser.
const thumbnailMaxDimension = 256

// POST /api/generate
//
// Accepts the browser's multipart form (prompt + reference images + options),
// runs the image pipeline and prompt enhancement synchronously, submits the
// generation, and returns the session ID immediately. Polling continues
// server-side under the session's cancellable context.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	opts := optionsFromForm(r)
	basePrompt := r.FormValue("prompt")

	// Decode every uploaded image; an undecodable file excludes only itself.
	var sources []*imaging.SourceImage
	var failed []imaging.ItemError
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			file, err := header.Open()
			if err != nil {
				failed = append(failed, imaging.ItemError{Name: header.Filename, Err: err})
				continue
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				failed = append(failed, imaging.ItemError{Name: header.Filename, Err: err})
				continue
			}
			src, err := imaging.DecodeBytes(header.Filename, data)
			if err != nil {
				log.Warn().Err(err).Str("image", header.Filename).Msg("Skipping undecodable upload")
				failed = append(failed, imaging.ItemError{Name: header.Filename, Err: err})
				continue
			}
			sources = append(sources, src)
		}
	}

	batch := imaging.ProcessSources(r.Context(), sources, s.cfg.NormalizeSize)
	batch.Failed = append(failed, batch.Failed...)

	enhanced := prompt.Enhance(basePrompt, batch.Analyses(), opts)

	images := make([]rodin.UploadImage, len(batch.Items))
	for i, item := range batch.Items {
		images[i] = rodin.UploadImage{Name: item.Source.Name, Data: item.Normalized}
	}

	// The session context outlives this request: the poll loop keeps
	// running after the response is written, until done or cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	session := newSession(batch, generate.Estimate(opts), cancel)
	s.sessions.Add(session)

	in := generate.Input{
		Prompt:   enhanced.EnhancedPrompt,
		Images:   images,
		Analyses: batch.Analyses(),
		Options:  opts,
	}

	go func() {
		defer cancel()
		result, err := s.orch.Run(ctx, in, session.observe)
		if err != nil {
			state := generate.StateFailed
			if errors.Is(err, generate.ErrStalled) {
				state = generate.StateStalled
			}
			session.fail(state, err)
			return
		}
		session.complete(result)
	}()

	log.Info().
		Str("sessionId", session.ID).
		Int("images", len(images)).
		Str("quality", string(opts.Quality)).
		Msg("Generation session started")

	respondJSON(w, http.StatusAccepted, map[string]any{
		"id":             session.ID,
		"enhancedPrompt": enhanced.EnhancedPrompt,
		"notice":         session.notice,
		"skippedImages":  session.skipped,
	})
}

// GET /api/generate/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}
	respondJSON(w, http.StatusOK, session.Snapshot(time.Now()))
}

// DELETE /api/generate/{id}
//
// Cancels the session's polling loop. Leaving the result view without
// cancelling would otherwise keep the loop running to completion against a
// session nobody is watching.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}
	session.Cancel()
	log.Info().Str("sessionId", session.ID).Msg("Session cancelled")
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GET /api/generate/{id}/thumbnail/{index}
//
// Serves a WebP preview of one accepted reference image.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid thumbnail index")
		return
	}
	item := session.Item(index)
	if item == nil {
		httpError(w, http.StatusNotFound, "no such image")
		return
	}

	data, mimeType, err := imaging.Thumbnail(item.Source.Image, thumbnailMaxDimension)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "thumbnail generation failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GET /api/proxy?url=
//
// Streams a result asset through the gateway so the viewer can fetch
// cross-origin binary content without CORS failure. Only the configured
// Rodin hosts are reachable.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		httpError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	if !s.proxyAllowed(raw) {
		log.Warn().Str("url", raw).Msg("Proxy request for disallowed host")
		httpError(w, http.StatusForbidden, "host not allowed")
		return
	}

	body, contentType, err := s.client.FetchAsset(r.Context(), raw)
	if err != nil {
		httpError(w, http.StatusBadGateway, "failed to fetch asset", err.Error())
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Warn().Err(err).Msg("Proxy stream interrupted")
	}
}
