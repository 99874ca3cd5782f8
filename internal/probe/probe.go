// Package probe reads metadata out of downloaded audio files so that queue
// items missing catalog metadata can be backfilled from the bytes we
// already have.
package probe

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	flacpicture "github.com/go-flac/flacpicture"
	flacvorbis "github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

// Info is what a local audio file knows about itself.
type Info struct {
	Title           string
	Artist          string
	DurationSeconds float64
	Artwork         []byte
	ArtworkMIME     string
}

// File probes the audio file at path. Unsupported formats return an error;
// supported formats return whatever subset of Info the file carries.
func File(path string) (*Info, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return probeFLAC(path)
	case ".mp3":
		return probeMP3(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

func probeFLAC(path string) (*Info, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	info := &Info{}

	if si, err := f.GetStreamInfo(); err == nil && si.SampleRate > 0 {
		info.DurationSeconds = float64(si.SampleCount) / float64(si.SampleRate)
	}

	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment:
			cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			if vals, err := cmt.Get(flacvorbis.FIELD_TITLE); err == nil && len(vals) > 0 {
				info.Title = vals[0]
			}
			if vals, err := cmt.Get(flacvorbis.FIELD_ARTIST); err == nil && len(vals) > 0 {
				info.Artist = vals[0]
			}
		case flac.Picture:
			if info.Artwork != nil {
				continue
			}
			pic, err := flacpicture.ParseFromMetaDataBlock(*block)
			if err != nil {
				continue
			}
			info.Artwork = pic.ImageData
			info.ArtworkMIME = pic.MIME
		}
	}

	return info, nil
}

func probeMP3(path string) (*Info, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 tags: %w", err)
	}
	defer tag.Close()

	info := &Info{
		Title:  tag.Title(),
		Artist: tag.Artist(),
	}

	// TLEN carries track length in milliseconds when the encoder wrote it.
	if tlen := tag.GetTextFrame("TLEN").Text; tlen != "" {
		if ms, err := strconv.ParseInt(strings.TrimSpace(tlen), 10, 64); err == nil && ms > 0 {
			info.DurationSeconds = float64(ms) / 1000.0
		}
	}

	frames := tag.GetFrames(tag.CommonID("Attached picture"))
	for _, f := range frames {
		pic, ok := f.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		info.Artwork = pic.Picture
		info.ArtworkMIME = pic.MimeType
		break
	}

	return info, nil
}
