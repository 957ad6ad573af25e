package match

import (
	"fmt"

	"github.com/franz/dupe-janitor/internal/meta"
	"github.com/franz/dupe-janitor/internal/util"
)

// Config is the resolved metadata matching policy. It is passed by value
// and never modified by the matcher.
type Config struct {
	TitleThreshold  float64 `json:"title_threshold"`
	ArtistThreshold float64 `json:"artist_threshold"`
	AlbumThreshold  float64 `json:"album_threshold"`

	// Both tolerances must hold for durations to agree
	DurationToleranceSec int     `json:"duration_tolerance_sec"`
	DurationTolerancePct float64 `json:"duration_tolerance_pct"`

	BitrateToleranceKbps int `json:"bitrate_tolerance_kbps"`
	MinFieldsToMatch     int `json:"min_fields"`

	IgnoreCase               bool `json:"ignore_case"`
	IgnorePunctuation        bool `json:"ignore_punctuation"`
	WordOrderSensitive       bool `json:"word_order_sensitive"`
	TrackNumberMustMatch     bool `json:"track_number_must_match"`
	IgnoreMissingTrackNumber bool `json:"ignore_missing_track_number"`
	IgnoreArtistPrefixes     bool `json:"ignore_artist_prefixes"`
	IgnoreFeaturing          bool `json:"ignore_featuring"`
	IgnoreAlbumEditions      bool `json:"ignore_album_editions"`
}

// DefaultConfig returns the default matching policy
func DefaultConfig() Config {
	return Config{
		TitleThreshold:           0.9,
		ArtistThreshold:          0.9,
		AlbumThreshold:           0.9,
		DurationToleranceSec:     3,
		DurationTolerancePct:     5,
		BitrateToleranceKbps:     64,
		MinFieldsToMatch:         2,
		IgnoreCase:               true,
		IgnorePunctuation:        true,
		WordOrderSensitive:       false,
		TrackNumberMustMatch:     false,
		IgnoreMissingTrackNumber: true,
		IgnoreArtistPrefixes:     true,
		IgnoreFeaturing:          true,
		IgnoreAlbumEditions:      true,
	}
}

// Validate checks that thresholds and tolerances are in range
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"title_threshold":  c.TitleThreshold,
		"artist_threshold": c.ArtistThreshold,
		"album_threshold":  c.AlbumThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %v", util.ErrInvalidConfig, name, v)
		}
	}
	if c.DurationToleranceSec < 0 || c.DurationTolerancePct < 0 || c.BitrateToleranceKbps < 0 {
		return fmt.Errorf("%w: tolerances must not be negative", util.ErrInvalidConfig)
	}
	if c.MinFieldsToMatch < 1 || c.MinFieldsToMatch > len(allFields) {
		return fmt.Errorf("%w: min_fields must be between 1 and %d, got %d",
			util.ErrInvalidConfig, len(allFields), c.MinFieldsToMatch)
	}
	return nil
}

// normalizeOptions maps the policy toggles onto text normalization rules
func (c Config) normalizeOptions() meta.Options {
	return meta.Options{
		IgnoreCase:         c.IgnoreCase,
		IgnorePunctuation:  c.IgnorePunctuation,
		FoldDiacritics:     c.IgnorePunctuation,
		StripArtistPrefix:  c.IgnoreArtistPrefixes,
		StripFeaturing:     c.IgnoreFeaturing,
		StripAlbumEditions: c.IgnoreAlbumEditions,
	}
}
