package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/fpang/rodin-studio/internal/generate"
)

// GET /api/generate/{id}/archive
//
// Streams every asset in the completed session's download listing as one
// zip. Assets are fetched from the remote listing on the fly; nothing is
// cached or persisted.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		httpError(w, http.StatusNotFound, "unknown session")
		return
	}

	view := session.Snapshot(time.Now())
	if view.State != generate.StateDone || len(view.Assets) == 0 {
		httpError(w, http.StatusConflict, "session has no downloadable results")
		return
	}

	filename := fmt.Sprintf("rodin-%s.zip", session.ID)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	for _, asset := range view.Assets {
		entry, err := zw.Create(asset.Name)
		if err != nil {
			log.Error().Err(err).Str("asset", asset.Name).Msg("Archive entry failed")
			break
		}

		body, _, err := s.client.FetchAsset(r.Context(), asset.URL)
		if err != nil {
			log.Warn().Err(err).Str("asset", asset.Name).Msg("Skipping unfetchable asset in archive")
			continue
		}
		_, err = io.Copy(entry, body)
		body.Close()
		if err != nil {
			log.Error().Err(err).Str("asset", asset.Name).Msg("Archive stream failed")
			break
		}
	}
	if err := zw.Close(); err != nil {
		log.Error().Err(err).Msg("Archive finalize failed")
	}

	log.Info().Str("sessionId", session.ID).Int("assets", len(view.Assets)).Msg("Result archive streamed")
}
