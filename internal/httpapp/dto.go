package httpapp

import (
	"strconv"

	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/remote"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func ToMap(errs []ValidationError) map[string]string {
	result := make(map[string]string)
	for _, e := range errs {
		result[e.Field] = e.Message
	}
	return result
}

// Validatable is implemented by every request DTO.
type Validatable interface {
	Validate() []ValidationError
}

type SetQueueRequest struct {
	Tracks []domain.QueueItem `json:"tracks"`
}

func (r *SetQueueRequest) Validate() []ValidationError {
	var errs []ValidationError
	for i, t := range r.Tracks {
		if t.ID == "" {
			errs = append(errs, ValidationError{Field: "tracks", Message: "track at index " + strconv.Itoa(i) + " has no id"})
		}
	}
	return errs
}

type AddToQueueRequest struct {
	Track       domain.QueueItem `json:"track"`
	BeforeIndex *int             `json:"before_index,omitempty"`
}

func (r *AddToQueueRequest) Validate() []ValidationError {
	var errs []ValidationError
	if r.Track.ID == "" {
		errs = append(errs, ValidationError{Field: "track", Message: "id is required"})
	}
	if r.BeforeIndex != nil && *r.BeforeIndex < 0 {
		errs = append(errs, ValidationError{Field: "before_index", Message: "must not be negative"})
	}
	return errs
}

type RemoveFromQueueRequest struct {
	Index int `json:"index"`
}

func (r *RemoveFromQueueRequest) Validate() []ValidationError {
	if r.Index < 0 {
		return []ValidationError{{Field: "index", Message: "must not be negative"}}
	}
	return nil
}

type MoveInQueueRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r *MoveInQueueRequest) Validate() []ValidationError {
	var errs []ValidationError
	if r.From < 0 {
		errs = append(errs, ValidationError{Field: "from", Message: "must not be negative"})
	}
	if r.To < 0 {
		errs = append(errs, ValidationError{Field: "to", Message: "must not be negative"})
	}
	return errs
}

type SeekRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
}

func (r *SeekRequest) Validate() []ValidationError {
	if r.PositionSeconds < 0 {
		return []ValidationError{{Field: "position_seconds", Message: "must not be negative"}}
	}
	return nil
}

type RepeatModeRequest struct {
	Mode string `json:"mode"`
}

func (r *RepeatModeRequest) Validate() []ValidationError {
	if !domain.RepeatMode(r.Mode).Valid() {
		return []ValidationError{{Field: "mode", Message: "must be one of off, track, queue"}}
	}
	return nil
}

type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

func (r *VolumeRequest) Validate() []ValidationError {
	if r.Volume < 0 || r.Volume > 1 {
		return []ValidationError{{Field: "volume", Message: "must be between 0 and 1"}}
	}
	return nil
}

type RateRequest struct {
	Rate float64 `json:"rate"`
}

func (r *RateRequest) Validate() []ValidationError {
	if r.Rate <= 0 || r.Rate > 4 {
		return []ValidationError{{Field: "rate", Message: "must be between 0 (exclusive) and 4"}}
	}
	return nil
}

type SleepTimerRequest struct {
	Minutes int `json:"minutes"`
}

func (r *SleepTimerRequest) Validate() []ValidationError {
	if r.Minutes <= 0 {
		return []ValidationError{{Field: "minutes", Message: "must be positive"}}
	}
	return nil
}

type RemoteEventRequest struct {
	remote.Event
}

func (r *RemoteEventRequest) Validate() []ValidationError {
	if r.Type == "" {
		return []ValidationError{{Field: "type", Message: "is required"}}
	}
	return nil
}
