// Package httpapp is the control surface: a JSON API the UI layer and the
// OS remote-control host talk to. It holds no playback state; every
// request lands on the player, the download manager or the remote bridge.
package httpapp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/player"
	"github.com/stillwave/player/internal/remote"
)

// DownloadService is the slice of the download manager the API exposes.
type DownloadService interface {
	DownloadTrack(ctx context.Context, trackID string) error
	RemoveDownload(trackID string)
	Entry(trackID string) domain.DownloadEntry
	Entries() []domain.DownloadEntry
}

type Handler struct {
	Player    *player.Player
	Downloads DownloadService
	Bridge    *remote.Bridge
	Logger    *logger.Logger
}

func NewHandler(p *player.Player, dl DownloadService, b *remote.Bridge, log *logger.Logger) *Handler {
	return &Handler{
		Player:    p,
		Downloads: dl,
		Bridge:    b,
		Logger:    log.WithComponent("httpapp"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/state", h.GetState)

	r.Post("/api/queue", h.SetQueue)
	r.Post("/api/queue/add", h.AddToQueue)
	r.Post("/api/queue/remove", h.RemoveFromQueue)
	r.Post("/api/queue/move", h.MoveInQueue)

	r.Post("/api/play", h.Play)
	r.Post("/api/pause", h.Pause)
	r.Post("/api/next", h.Next)
	r.Post("/api/previous", h.Previous)
	r.Post("/api/skip/{index}", h.SkipTo)
	r.Post("/api/seek", h.Seek)
	r.Post("/api/repeat", h.SetRepeatMode)
	r.Post("/api/volume", h.SetVolume)
	r.Post("/api/rate", h.SetRate)

	r.Post("/api/sleep", h.SetSleepTimer)
	r.Delete("/api/sleep", h.CancelSleepTimer)

	r.Get("/api/downloads", h.ListDownloads)
	r.Post("/api/downloads/{id}", h.StartDownload)
	r.Delete("/api/downloads/{id}", h.RemoveDownload)

	r.Post("/api/remote", h.RemoteEvent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Warn("encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// decode parses a JSON body and runs the DTO's validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst Validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if errs := dst.Validate(); len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": ToMap(errs)})
		return false
	}
	return true
}
