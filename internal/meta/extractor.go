package meta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
)

// ReadFile builds a catalogue record for an audio file. Tags come from
// dhowden/tag; audio properties come from ffprobe when it is installed.
// Unreadable tags leave the fields empty rather than failing the import.
func ReadFile(ctx context.Context, path string) (*store.FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fileKey, err := util.GenerateFileKey(path)
	if err != nil {
		return nil, fmt.Errorf("failed to generate file key: %w", err)
	}

	rec := &store.FileRecord{
		FileKey:   fileKey,
		Path:      path,
		SizeBytes: info.Size(),
		Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	tagErr := readTags(path, rec)
	if tagErr != nil {
		util.DebugLog("No readable tags in %s: %v", path, tagErr)
	}

	probe, err := RunFFprobe(ctx, path)
	switch {
	case errors.Is(err, util.ErrToolUnavailable):
		// Audio properties stay zero
	case err != nil:
		util.DebugLog("ffprobe failed for %s: %v", path, err)
	default:
		applyProbe(probe, rec, tagErr != nil)
	}

	return rec, nil
}

func readTags(path string, rec *store.FileRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("failed to read tags: %w", err)
	}

	rec.Title = CleanString(m.Title())
	rec.Artist = CleanString(m.Artist())
	if rec.Artist == "" {
		rec.Artist = CleanString(m.AlbumArtist())
	}
	rec.Album = CleanString(m.Album())
	rec.Genre = CleanString(m.Genre())
	rec.Year = m.Year()
	rec.TrackNumber, _ = m.Track()

	return nil
}

// applyProbe copies audio properties, and tags too when the tag reader failed
func applyProbe(info *FFprobeInfo, rec *store.FileRecord, withTags bool) {
	props := info.Properties()
	rec.DurationSec = props.DurationSec
	rec.BitrateKbps = props.BitrateKbps
	rec.SampleRate = props.SampleRate
	if props.Codec != "" && rec.Format == "" {
		rec.Format = props.Codec
	}

	if !withTags || info.Format == nil || info.Format.Tags == nil {
		return
	}

	tags := info.Format.Tags
	rec.Title = CleanString(getTag(tags, "title", "TITLE"))
	rec.Artist = CleanString(getTag(tags, "artist", "ARTIST", "album_artist", "ALBUM_ARTIST"))
	rec.Album = CleanString(getTag(tags, "album", "ALBUM"))
	rec.Genre = CleanString(getTag(tags, "genre", "GENRE"))
	rec.Year = leadingInt(getTag(tags, "date", "DATE", "year", "YEAR"))
	rec.TrackNumber = leadingInt(getTag(tags, "track", "TRACK"))
}

// getTag retrieves a tag value from a map, trying multiple keys
func getTag(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		if val, ok := tags[key]; ok && val != "" {
			return val
		}
	}
	return ""
}

// leadingInt parses "3/12" as 3 and "1999-05-01" as 1999
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
