package httpapp

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stillwave/player/internal/domain"
)

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) SetQueue(w http.ResponseWriter, r *http.Request) {
	var req SetQueueRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Player.SetQueue(req.Tracks)
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) AddToQueue(w http.ResponseWriter, r *http.Request) {
	var req AddToQueueRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Player.AddToQueue(req.Track, req.BeforeIndex)
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) RemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	var req RemoveFromQueueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Player.RemoveFromQueue(req.Index); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) MoveInQueue(w http.ResponseWriter, r *http.Request) {
	var req MoveInQueueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Player.MoveInQueue(req.From, req.To); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	h.Player.Play()
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.Player.Pause()
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.Player.SkipToNext()
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	h.Player.SkipToPrevious()
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) SkipTo(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := h.Player.SkipTo(index); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Player.SeekTo(req.PositionSeconds)
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) SetRepeatMode(w http.ResponseWriter, r *http.Request) {
	var req RepeatModeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Player.SetRepeatMode(domain.RepeatMode(req.Mode)); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) SetVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Player.SetVolume(req.Volume)
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Player.SetPlaybackRate(req.Rate); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) SetSleepTimer(w http.ResponseWriter, r *http.Request) {
	var req SleepTimerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Player.SetSleepTimer(req.Minutes); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) CancelSleepTimer(w http.ResponseWriter, r *http.Request) {
	h.Player.CancelSleepTimer()
	h.writeJSON(w, http.StatusOK, h.Player.State())
}

func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Downloads.Entries())
}

// StartDownload kicks the transfer off on its own goroutine; the response
// carries the entry's immediate status and clients follow progress via
// GET /api/downloads.
func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "id")
	if trackID == "" {
		h.writeError(w, http.StatusBadRequest, "track id is required")
		return
	}
	// The request context dies with the response; the transfer outlives it.
	go func() {
		if err := h.Downloads.DownloadTrack(context.Background(), trackID); err != nil {
			h.Logger.Warn("download failed", "track", trackID, "error", err)
		}
	}()
	h.writeJSON(w, http.StatusAccepted, h.Downloads.Entry(trackID))
}

func (h *Handler) RemoveDownload(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "id")
	if trackID == "" {
		h.writeError(w, http.StatusBadRequest, "track id is required")
		return
	}
	h.Downloads.RemoveDownload(trackID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoteEvent(w http.ResponseWriter, r *http.Request) {
	var req RemoteEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Bridge.HandleEvent(req.Event)
	h.writeJSON(w, http.StatusOK, h.Player.State())
}
