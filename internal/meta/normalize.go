package meta

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options selects which normalization rules apply before tag comparison
type Options struct {
	IgnoreCase         bool
	IgnorePunctuation  bool
	FoldDiacritics     bool
	StripArtistPrefix  bool // "The Beatles" and "Beatles, The" -> "Beatles"
	StripFeaturing     bool // "Song (feat. X)" -> "Song"
	StripAlbumEditions bool // "Album (Remastered 2009)" -> "Album"
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// (feat. X), [ft. X], (with X)
	featParenRe = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring|with)\s+[^\)\]]*[\)\]]`)
	// trailing "feat. X" without brackets
	featTrailRe = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)

	editionParenRe = regexp.MustCompile(`(?i)\s*[\(\[][^\)\]]*\b(?:remaster(?:ed)?|deluxe|edition|expanded|anniversary|bonus|special|reissue|collector'?s)\b[^\)\]]*[\)\]]`)
	editionDashRe  = regexp.MustCompile(`(?i)\s+-\s+(?:\d{4}\s+)?(?:remaster(?:ed)?|deluxe|expanded|special|anniversary)\b.*$`)

	punctReplacer = strings.NewReplacer(
		"&", " and ",
		"-", " ",
		"_", " ",
		"/", "",
	)

	diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeTitle normalizes a track title for comparison
func NormalizeTitle(title string, opts Options) string {
	title = CleanString(title)
	if title == "" {
		return ""
	}
	if opts.StripFeaturing {
		title = StripFeaturing(title)
	}
	return finish(title, opts)
}

// NormalizeArtist normalizes an artist name for comparison
func NormalizeArtist(artist string, opts Options) string {
	artist = CleanString(artist)
	if artist == "" {
		return ""
	}
	if opts.StripFeaturing {
		artist = StripFeaturing(artist)
	}
	if opts.StripArtistPrefix {
		artist = StripArtistPrefix(artist)
	}
	return finish(artist, opts)
}

// NormalizeAlbum normalizes an album name for comparison
func NormalizeAlbum(album string, opts Options) string {
	album = CleanString(album)
	if album == "" {
		return ""
	}
	if opts.StripAlbumEditions {
		album = StripAlbumEdition(album)
	}
	return finish(album, opts)
}

func finish(s string, opts Options) string {
	if opts.FoldDiacritics {
		s = FoldDiacritics(s)
	}
	if opts.IgnoreCase {
		s = strings.ToLower(s)
	}
	if opts.IgnorePunctuation {
		s = removePunctuation(s)
	}
	return collapseWhitespace(s)
}

// CleanString performs basic string cleaning (Unicode, trim, collapse)
func CleanString(s string) string {
	if s == "" {
		return ""
	}
	return collapseWhitespace(norm.NFC.String(s))
}

// StripFeaturing removes featured-artist clauses
func StripFeaturing(s string) string {
	s = featParenRe.ReplaceAllString(s, "")
	s = featTrailRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// StripArtistPrefix drops a leading or trailing "The"
func StripArtistPrefix(s string) string {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "the ") && len(s) > 4:
		s = s[4:]
	case strings.HasSuffix(lower, ", the"):
		s = s[:len(s)-5]
	}
	return strings.TrimSpace(s)
}

// StripAlbumEdition removes remaster/deluxe/anniversary edition markers
func StripAlbumEdition(s string) string {
	stripped := editionParenRe.ReplaceAllString(s, "")
	stripped = editionDashRe.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return strings.TrimSpace(s)
	}
	return stripped
}

// FoldDiacritics maps accented letters to their base letter ("Björk" -> "Bjork")
func FoldDiacritics(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		return s
	}
	return folded
}

// SortTokens returns the whitespace-separated words of s in sorted order
func SortTokens(s string) string {
	words := strings.Fields(s)
	sort.Strings(words)
	return strings.Join(words, " ")
}

// removePunctuation removes punctuation and symbol characters
func removePunctuation(s string) string {
	s = punctReplacer.Replace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
}

// collapseWhitespace replaces runs of whitespace with a single space
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
