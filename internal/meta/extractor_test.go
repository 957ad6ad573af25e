package meta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/dupe-janitor/internal/store"
)

func TestReadFileWithoutTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Track.MP3")
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if rec.Path != path {
		t.Errorf("Path = %q", rec.Path)
	}
	if rec.FileKey == "" {
		t.Error("expected a file key")
	}
	if rec.SizeBytes != int64(len("not really audio")) {
		t.Errorf("SizeBytes = %d", rec.SizeBytes)
	}
	if rec.Format != "mp3" {
		t.Errorf("Format = %q, want mp3", rec.Format)
	}
	if rec.Title != "" || rec.Artist != "" {
		t.Errorf("expected empty tags, got %q / %q", rec.Title, rec.Artist)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.flac")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyProbeTags(t *testing.T) {
	info := &FFprobeInfo{
		Streams: []FFprobeStream{{CodecName: "vorbis", CodecType: "audio", SampleRate: IntOrString{48000}, BitRate: IntOrString{192000}}},
		Format: &FFprobeFormat{
			Duration: "61.4",
			Tags: map[string]string{
				"TITLE":  "Song",
				"ARTIST": "Artist",
				"DATE":   "2004-03-01",
				"track":  "7/12",
			},
		},
	}

	withoutTags, withTags := &store.FileRecord{}, &store.FileRecord{}
	applyProbe(info, withoutTags, false)
	applyProbe(info, withTags, true)

	if withoutTags.BitrateKbps != 192 || withoutTags.DurationSec != 61 || withoutTags.SampleRate != 48000 {
		t.Errorf("unexpected audio properties: %+v", withoutTags)
	}
	if withoutTags.Title != "" {
		t.Error("tags must not be copied when the tag reader succeeded")
	}
	if withTags.Title != "Song" || withTags.Artist != "Artist" || withTags.Year != 2004 || withTags.TrackNumber != 7 {
		t.Errorf("unexpected tags: %+v", withTags)
	}
}

func TestLeadingInt(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"3/12", 3},
		{"1999-05-01", 1999},
		{"12", 12},
		{"", 0},
		{"abc", 0},
	}

	for _, tt := range tests {
		if got := leadingInt(tt.input); got != tt.expected {
			t.Errorf("leadingInt(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}
