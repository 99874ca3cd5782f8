package engine

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/stillwave/player/internal/constants"
	"github.com/stillwave/player/internal/logger"
)

const speakerRate = beep.SampleRate(44100)

var speakerOnce sync.Once

func initSpeaker() error {
	var err error
	speakerOnce.Do(func() {
		err = speaker.Init(speakerRate, speakerRate.N(time.Second/10))
	})
	return err
}

// Beep plays audio through the gopxl/beep speaker. The zero value is not
// usable; construct with NewBeep.
type Beep struct {
	mu   sync.Mutex
	http *http.Client
	log  *logger.Logger

	// events counts in-flight callback deliveries so Dispose can drain
	// them before returning.
	events sync.WaitGroup

	gen       uint64
	streamer  beep.StreamSeekCloser
	format    beep.Format
	resampler *beep.Resampler
	volumeFx  *effects.Volume
	ctrl      *beep.Ctrl

	volume float64
	rate   float64
	loop   bool
	ended  bool

	onStatus    func(Status)
	onFinished  func()
	onColdStart func() (string, bool)
	onError     func(error)
}

func NewBeep(httpClient *http.Client, log *logger.Logger) (*Beep, error) {
	if err := initSpeaker(); err != nil {
		return nil, fmt.Errorf("initializing speaker: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Beep{
		http:   httpClient,
		log:    log.WithComponent("engine"),
		volume: 1.0,
		rate:   1.0,
	}, nil
}

func (e *Beep) SetOnStatus(fn func(Status)) { e.mu.Lock(); e.onStatus = fn; e.mu.Unlock() }
func (e *Beep) SetOnFinished(fn func())     { e.mu.Lock(); e.onFinished = fn; e.mu.Unlock() }
func (e *Beep) SetOnColdStart(fn func() (string, bool)) {
	e.mu.Lock()
	e.onColdStart = fn
	e.mu.Unlock()
}
func (e *Beep) SetOnError(fn func(err error)) { e.mu.Lock(); e.onError = fn; e.mu.Unlock() }

// Load fetches the source, decodes it and replaces the current handle.
// The configured volume, playback rate and loop flag carry over to the
// new handle.
func (e *Beep) Load(uri string, autoPlay bool) error {
	data, ext, err := e.fetch(uri)
	if err != nil {
		return err
	}
	streamer, format, err := decode(data, ext)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", ext, err)
	}

	e.mu.Lock()
	e.disposeLocked()
	e.gen++
	gen := e.gen

	e.streamer = streamer
	e.format = format
	e.ended = false

	speaker.Lock()
	e.resampler = beep.ResampleRatio(4, e.ratioLocked(), streamer)
	e.ctrl = &beep.Ctrl{Streamer: e.resampler, Paused: !autoPlay}
	e.volumeFx = &effects.Volume{Streamer: e.ctrl, Base: 2}
	e.applyVolumeLocked()
	speaker.Unlock()

	speaker.Play(e.armLocked(gen))
	e.mu.Unlock()

	go e.tick(gen)
	e.log.Debug("loaded track", "uri", uri, "autoPlay", autoPlay)
	return nil
}

// armLocked builds the sequence that signals end of stream. The callback
// runs on the speaker goroutine with its lock held, so the hand-off to
// onStreamEnd happens on a fresh goroutine.
func (e *Beep) armLocked(gen uint64) beep.Streamer {
	return beep.Seq(e.volumeFx, beep.Callback(func() {
		go e.onStreamEnd(gen)
	}))
}

func (e *Beep) onStreamEnd(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.streamer == nil {
		e.mu.Unlock()
		return
	}
	if e.loop {
		speaker.Lock()
		err := e.streamer.Seek(0)
		speaker.Unlock()
		if err == nil {
			speaker.Play(e.armLocked(gen))
			e.mu.Unlock()
			return
		}
		e.log.Error("loop restart failed", "error", err)
	}
	e.ended = true
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
	fn := e.onFinished
	if fn != nil {
		e.events.Add(1)
	}
	e.mu.Unlock()
	if fn != nil {
		fn()
		e.events.Done()
	}
}

// Play resumes the current handle. With no handle it asks the cold-start
// callback for a source and loads it playing.
func (e *Beep) Play() error {
	e.mu.Lock()
	if e.streamer == nil || e.ended {
		cold := e.onColdStart
		e.mu.Unlock()
		if cold == nil {
			return nil
		}
		uri, ok := cold()
		if !ok {
			return nil
		}
		return e.Load(uri, true)
	}
	speaker.Lock()
	e.ctrl.Paused = false
	speaker.Unlock()
	e.mu.Unlock()
	return nil
}

func (e *Beep) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return nil
	}
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (e *Beep) SeekTo(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamer == nil {
		return nil
	}
	if seconds < 0 {
		seconds = 0
	}
	sample := e.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if sample > e.streamer.Len() {
		sample = e.streamer.Len()
	}
	speaker.Lock()
	err := e.streamer.Seek(sample)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seeking to %.2fs: %w", seconds, err)
	}
	return nil
}

func (e *Beep) SetVolume(v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clamp(v, 0, 1)
	if e.volumeFx == nil {
		return nil
	}
	speaker.Lock()
	e.applyVolumeLocked()
	speaker.Unlock()
	return nil
}

func (e *Beep) applyVolumeLocked() {
	if e.volume <= 0 {
		e.volumeFx.Silent = true
		return
	}
	e.volumeFx.Silent = false
	e.volumeFx.Volume = math.Log2(e.volume)
}

func (e *Beep) SetPlaybackRate(r float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r <= 0 {
		r = 1.0
	}
	e.rate = r
	if e.resampler == nil {
		return nil
	}
	speaker.Lock()
	e.resampler.SetRatio(e.ratioLocked())
	speaker.Unlock()
	return nil
}

// ratioLocked folds the sample-rate conversion and the playback rate
// into one resampling ratio.
func (e *Beep) ratioLocked() float64 {
	return float64(e.format.SampleRate) / float64(speakerRate) * e.rate
}

func (e *Beep) SetLoop(loop bool) error {
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
	return nil
}

func (e *Beep) HasHandle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamer != nil && !e.ended
}

func (e *Beep) Dispose() {
	e.mu.Lock()
	e.disposeLocked()
	e.gen++
	e.mu.Unlock()
	// Drain deliveries that were already past the generation check so no
	// callback fires after Dispose returns.
	e.events.Wait()
}

func (e *Beep) disposeLocked() {
	if e.streamer == nil {
		return
	}
	speaker.Clear()
	e.streamer.Close()
	e.streamer = nil
	e.resampler = nil
	e.volumeFx = nil
	e.ctrl = nil
	e.ended = false
}

// tick publishes a status event every half second until the handle it
// was started for is replaced or disposed.
func (e *Beep) tick(gen uint64) {
	t := time.NewTicker(constants.StatusTickPeriod)
	defer t.Stop()
	for range t.C {
		e.mu.Lock()
		if gen != e.gen || e.streamer == nil {
			e.mu.Unlock()
			return
		}
		speaker.Lock()
		pos := e.format.SampleRate.D(e.streamer.Position()).Seconds()
		dur := e.format.SampleRate.D(e.streamer.Len()).Seconds()
		playing := !e.ctrl.Paused && !e.ended
		speaker.Unlock()
		fn := e.onStatus
		if fn != nil {
			e.events.Add(1)
		}
		e.mu.Unlock()
		if fn != nil {
			fn(Status{IsPlaying: playing, PositionSeconds: pos, DurationSeconds: dur})
			e.events.Done()
		}
	}
}

func (e *Beep) fetch(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		resp, err := e.http.Get(uri)
		if err != nil {
			return nil, "", fmt.Errorf("fetching audio: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("fetching audio: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("reading audio: %w", err)
		}
		ext := urlExt(uri)
		if ext == "" {
			ext = constants.ExtensionForMime(resp.Header.Get("Content-Type"))
		}
		return data, ext, nil
	}
	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, "", fmt.Errorf("reading audio file: %w", err)
	}
	return data, strings.ToLower(path.Ext(uri)), nil
}

func urlExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func decode(data []byte, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	r := readSeekNopCloser{bytes.NewReader(data)}
	switch ext {
	case ".mp3":
		return mp3.Decode(r)
	case ".flac":
		return flac.Decode(r)
	case ".ogg", ".oga":
		return vorbis.Decode(r)
	case ".wav":
		return wav.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
