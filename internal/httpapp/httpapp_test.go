package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stillwave/player/internal/catalog"
	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/engine"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/player"
	"github.com/stillwave/player/internal/remote"
)

type memSettings struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *memSettings) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *memSettings) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

type fakeDownloads struct {
	mu      sync.Mutex
	started []string
	removed []string
	entries map[string]domain.DownloadEntry
}

func (f *fakeDownloads) DownloadTrack(ctx context.Context, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, trackID)
	return nil
}

func (f *fakeDownloads) RemoveDownload(trackID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, trackID)
}

func (f *fakeDownloads) Entry(trackID string) domain.DownloadEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[trackID]; ok {
		return e
	}
	return domain.DownloadEntry{TrackID: trackID, Status: domain.DownloadIdle}
}

func (f *fakeDownloads) Entries() []domain.DownloadEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DownloadEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out
}

func (f *fakeDownloads) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.started))
	copy(out, f.started)
	return out
}

type testAPI struct {
	server *httptest.Server
	fake   *engine.Fake
	player *player.Player
	dl     *fakeDownloads
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	fake := engine.NewFake()
	p := player.New(fake, catalog.NewMockResolver(), nil, &memSettings{m: map[string]string{}}, logger.Default())
	t.Cleanup(p.Close)

	bridge := remote.NewBridge(p, logger.Default())
	bridge.Register()

	dl := &fakeDownloads{entries: map[string]domain.DownloadEntry{}}
	h := NewHandler(p, dl, bridge, logger.Default())

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testAPI{server: server, fake: fake, player: p, dl: dl}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*http.Response, player.Snapshot) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var snap player.Snapshot
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decoding state response: %v", err)
		}
	}
	return resp, snap
}

func (a *testAPI) waitLoads(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(a.fake.Loads()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d engine loads", n)
}

func queueBody(ids ...string) SetQueueRequest {
	var req SetQueueRequest
	for _, id := range ids {
		req.Tracks = append(req.Tracks, domain.QueueItem{
			ID:  id,
			URL: "https://cdn.example.com/" + id + ".mp3",
		})
	}
	return req
}

func TestStateEndpoint(t *testing.T) {
	a := newTestAPI(t)
	resp, snap := a.do(t, http.MethodGet, "/api/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(snap.Queue) != 0 || snap.CurrentTrackIndex != nil {
		t.Error("fresh player should have an empty queue")
	}
	if snap.Playback.Volume != 1.0 || snap.Playback.PlaybackRate != 1.0 {
		t.Errorf("defaults = %+v", snap.Playback)
	}
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	resp, snap := a.do(t, http.MethodPost, "/api/queue", queueBody("a", "b"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set queue status = %d", resp.StatusCode)
	}
	if len(snap.Queue) != 2 || snap.CurrentTrackIndex == nil || *snap.CurrentTrackIndex != 0 {
		t.Fatalf("after set queue: %+v", snap)
	}
	a.waitLoads(t, 1)

	_, snap = a.do(t, http.MethodPost, "/api/queue/add", AddToQueueRequest{
		Track: domain.QueueItem{ID: "c", URL: "https://cdn.example.com/c.mp3"},
	})
	if len(snap.Queue) != 3 {
		t.Fatalf("queue length = %d after add", len(snap.Queue))
	}

	_, snap = a.do(t, http.MethodPost, "/api/queue/move", MoveInQueueRequest{From: 2, To: 0})
	if snap.Queue[0].ID != "c" {
		t.Errorf("queue[0] = %s after move, want c", snap.Queue[0].ID)
	}
	if snap.CurrentTrackIndex == nil || *snap.CurrentTrackIndex != 1 {
		t.Error("current index should shift with the move")
	}

	_, snap = a.do(t, http.MethodPost, "/api/queue/remove", RemoveFromQueueRequest{Index: 0})
	if len(snap.Queue) != 2 {
		t.Errorf("queue length = %d after remove", len(snap.Queue))
	}

	resp, _ = a.do(t, http.MethodPost, "/api/queue/remove", RemoveFromQueueRequest{Index: 9})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range remove status = %d, want 400", resp.StatusCode)
	}
}

func TestTransportEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/queue", queueBody("a", "b", "c"))
	a.waitLoads(t, 1)

	_, snap := a.do(t, http.MethodPost, "/api/pause", nil)
	if snap.Playback.IsPlaying {
		t.Error("pause should stop playback")
	}

	_, snap = a.do(t, http.MethodPost, "/api/play", nil)
	if !snap.Playback.IsPlaying {
		t.Error("play should resume")
	}

	_, snap = a.do(t, http.MethodPost, "/api/next", nil)
	if snap.CurrentTrackIndex == nil || *snap.CurrentTrackIndex != 1 {
		t.Error("next should advance the index")
	}

	resp, snap := a.do(t, http.MethodPost, "/api/skip/2", nil)
	if resp.StatusCode != http.StatusOK || *snap.CurrentTrackIndex != 2 {
		t.Errorf("skip: status %d, index %v", resp.StatusCode, snap.CurrentTrackIndex)
	}

	resp, _ = a.do(t, http.MethodPost, "/api/skip/42", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out-of-range skip status = %d", resp.StatusCode)
	}

	_, snap = a.do(t, http.MethodPost, "/api/seek", SeekRequest{PositionSeconds: 30})
	if snap.Playback.PositionSeconds != 30 {
		t.Errorf("position = %v after seek", snap.Playback.PositionSeconds)
	}
}

func TestPreferenceEndpoints(t *testing.T) {
	a := newTestAPI(t)

	_, snap := a.do(t, http.MethodPost, "/api/repeat", RepeatModeRequest{Mode: "queue"})
	if snap.Playback.RepeatMode != domain.RepeatQueue {
		t.Errorf("repeat mode = %q", snap.Playback.RepeatMode)
	}
	resp, _ := a.do(t, http.MethodPost, "/api/repeat", RepeatModeRequest{Mode: "shuffle"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid repeat mode status = %d", resp.StatusCode)
	}

	_, snap = a.do(t, http.MethodPost, "/api/volume", VolumeRequest{Volume: 0.5})
	if snap.Playback.Volume != 0.5 {
		t.Errorf("volume = %v", snap.Playback.Volume)
	}
	resp, _ = a.do(t, http.MethodPost, "/api/volume", VolumeRequest{Volume: 1.5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid volume status = %d", resp.StatusCode)
	}

	_, snap = a.do(t, http.MethodPost, "/api/rate", RateRequest{Rate: 1.25})
	if snap.Playback.PlaybackRate != 1.25 {
		t.Errorf("rate = %v", snap.Playback.PlaybackRate)
	}
}

func TestSleepTimerEndpoints(t *testing.T) {
	a := newTestAPI(t)

	_, snap := a.do(t, http.MethodPost, "/api/sleep", SleepTimerRequest{Minutes: 10})
	if !snap.SleepTimer.Active || snap.SleepTimer.DurationMinutes != 10 {
		t.Errorf("sleep timer = %+v", snap.SleepTimer)
	}

	_, snap = a.do(t, http.MethodDelete, "/api/sleep", nil)
	if snap.SleepTimer.Active {
		t.Error("timer should be inactive after cancel")
	}

	resp, _ := a.do(t, http.MethodPost, "/api/sleep", SleepTimerRequest{Minutes: 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero minutes status = %d", resp.StatusCode)
	}
}

func TestDownloadEndpoints(t *testing.T) {
	a := newTestAPI(t)

	resp, _ := a.do(t, http.MethodPost, "/api/downloads/track-1", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("start download status = %d, want 202", resp.StatusCode)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(a.dl.Started()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := a.dl.Started(); len(got) != 1 || got[0] != "track-1" {
		t.Errorf("started = %v", got)
	}

	resp, _ = a.do(t, http.MethodDelete, "/api/downloads/track-1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("remove download status = %d", resp.StatusCode)
	}

	a.dl.mu.Lock()
	a.dl.entries["track-2"] = domain.DownloadEntry{TrackID: "track-2", Status: domain.DownloadDownloaded}
	a.dl.mu.Unlock()
	req, _ := http.NewRequest(http.MethodGet, a.server.URL+"/api/downloads", nil)
	listResp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var entries []domain.DownloadEntry
	if err := json.NewDecoder(listResp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].TrackID != "track-2" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRemoteEventEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPost, "/api/queue", queueBody("a", "b"))
	a.waitLoads(t, 1)

	_, snap := a.do(t, http.MethodPost, "/api/remote", RemoteEventRequest{
		Event: remote.Event{Type: remote.EventPause},
	})
	if snap.Playback.IsPlaying {
		t.Error("remote pause should stop playback")
	}

	resp, _ := a.do(t, http.MethodPost, "/api/remote", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing type status = %d", resp.StatusCode)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	a := newTestAPI(t)
	req, _ := http.NewRequest(http.MethodPost, a.server.URL+"/api/seek", bytes.NewBufferString("{not json"))
	resp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}
}
