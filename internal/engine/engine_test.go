package engine

import (
	"testing"
)

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, _, err := decode([]byte{0x00, 0x01}, ".xyz")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestURLExtStripsQuery(t *testing.T) {
	got := urlExt("https://cdn.example.com/audio/track-1.mp3?token=abc&exp=123")
	if got != ".mp3" {
		t.Errorf("urlExt = %q, want .mp3", got)
	}
	if got := urlExt("https://cdn.example.com/stream"); got != "" {
		t.Errorf("urlExt with no extension = %q, want empty", got)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(1.5, 0, 1); got != 1 {
		t.Errorf("clamp(1.5) = %v", got)
	}
	if got := clamp(-0.2, 0, 1); got != 0 {
		t.Errorf("clamp(-0.2) = %v", got)
	}
	if got := clamp(0.5, 0, 1); got != 0.5 {
		t.Errorf("clamp(0.5) = %v", got)
	}
}

func TestFakeLoopSuppressesFinished(t *testing.T) {
	f := NewFake()
	finished := 0
	f.SetOnFinished(func() { finished++ })

	if err := f.Load("file.mp3", true); err != nil {
		t.Fatal(err)
	}
	f.SetLoop(true)
	f.Finish()
	if finished != 0 {
		t.Fatalf("finished fired %d times while looping", finished)
	}
	if got := f.Position(); got != 0 {
		t.Errorf("position after loop restart = %v, want 0", got)
	}
	if !f.Playing() {
		t.Error("loop restart should keep playing")
	}

	f.SetLoop(false)
	f.Finish()
	if finished != 1 {
		t.Fatalf("finished fired %d times, want 1", finished)
	}
	if f.HasHandle() {
		t.Error("ended handle should not count as active")
	}
}

func TestFakeColdStartPlay(t *testing.T) {
	f := NewFake()
	f.SetOnColdStart(func() (string, bool) { return "file.mp3", true })

	if err := f.Play(); err != nil {
		t.Fatal(err)
	}
	last, ok := f.LastLoad()
	if !ok {
		t.Fatal("cold-start play should trigger a load")
	}
	if last.URI != "file.mp3" || !last.AutoPlay {
		t.Errorf("cold-start load = %+v", last)
	}
}
