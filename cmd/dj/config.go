package main

import (
	"fmt"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/fingerprint"
	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/session"
	"github.com/spf13/viper"
)

func setDefaults() {
	d := match.DefaultConfig()
	viper.SetDefault("match.title_threshold", d.TitleThreshold)
	viper.SetDefault("match.artist_threshold", d.ArtistThreshold)
	viper.SetDefault("match.album_threshold", d.AlbumThreshold)
	viper.SetDefault("match.duration_tolerance_sec", d.DurationToleranceSec)
	viper.SetDefault("match.duration_tolerance_pct", d.DurationTolerancePct)
	viper.SetDefault("match.bitrate_tolerance_kbps", d.BitrateToleranceKbps)
	viper.SetDefault("match.min_fields", d.MinFieldsToMatch)
	viper.SetDefault("match.ignore_case", d.IgnoreCase)
	viper.SetDefault("match.ignore_punctuation", d.IgnorePunctuation)
	viper.SetDefault("match.word_order_sensitive", d.WordOrderSensitive)
	viper.SetDefault("match.track_number_must_match", d.TrackNumberMustMatch)
	viper.SetDefault("match.ignore_missing_track_number", d.IgnoreMissingTrackNumber)
	viper.SetDefault("match.ignore_artist_prefixes", d.IgnoreArtistPrefixes)
	viper.SetDefault("match.ignore_featuring", d.IgnoreFeaturing)
	viper.SetDefault("match.ignore_album_editions", d.IgnoreAlbumEditions)

	viper.SetDefault("fingerprint.threshold", match.DefaultFingerprintThreshold)
	viper.SetDefault("fingerprint.length_sec", fingerprint.DefaultLengthSec)
	viper.SetDefault("fingerprint.workers", fingerprint.DefaultWorkers)

	viper.SetDefault("cache.ttl", cluster.DefaultCacheTTL)
	viper.SetDefault("session.retention", session.DefaultRetention)
	viper.SetDefault("session.batch_size", session.DefaultBatchSize)
	viper.SetDefault("session.progress_every", session.DefaultProgressEvery)
	viper.SetDefault("serve.addr", "127.0.0.1:8470")
	viper.SetDefault("scan.concurrency", 8)
}

// loadMatchConfig resolves the metadata matching policy from match.* keys
func loadMatchConfig(v *viper.Viper) (match.Config, error) {
	cfg := match.Config{
		TitleThreshold:           v.GetFloat64("match.title_threshold"),
		ArtistThreshold:          v.GetFloat64("match.artist_threshold"),
		AlbumThreshold:           v.GetFloat64("match.album_threshold"),
		DurationToleranceSec:     v.GetInt("match.duration_tolerance_sec"),
		DurationTolerancePct:     v.GetFloat64("match.duration_tolerance_pct"),
		BitrateToleranceKbps:     v.GetInt("match.bitrate_tolerance_kbps"),
		MinFieldsToMatch:         v.GetInt("match.min_fields"),
		IgnoreCase:               v.GetBool("match.ignore_case"),
		IgnorePunctuation:        v.GetBool("match.ignore_punctuation"),
		WordOrderSensitive:       v.GetBool("match.word_order_sensitive"),
		TrackNumberMustMatch:     v.GetBool("match.track_number_must_match"),
		IgnoreMissingTrackNumber: v.GetBool("match.ignore_missing_track_number"),
		IgnoreArtistPrefixes:     v.GetBool("match.ignore_artist_prefixes"),
		IgnoreFeaturing:          v.GetBool("match.ignore_featuring"),
		IgnoreAlbumEditions:      v.GetBool("match.ignore_album_editions"),
	}
	if err := cfg.Validate(); err != nil {
		return match.Config{}, err
	}
	return cfg, nil
}

// loadFingerprintThreshold reads and range-checks fingerprint.threshold
func loadFingerprintThreshold(v *viper.Viper) (float64, error) {
	t := v.GetFloat64("fingerprint.threshold")
	if t <= 0 || t > 1 {
		return 0, fmt.Errorf("fingerprint.threshold must be in (0, 1], got %v", t)
	}
	return t, nil
}

// getDuration reads a duration key, falling back when unset or invalid
func getDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d := v.GetDuration(key)
	if d <= 0 {
		return fallback
	}
	return d
}
