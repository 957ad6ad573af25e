package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/franz/dupe-janitor/internal/match"
	"github.com/franz/dupe-janitor/internal/util"
)

// DefaultLengthSec is how many seconds of audio are analysed per file
const DefaultLengthSec = 120

// Result is one generated fingerprint
type Result struct {
	Fingerprint string // comma-separated raw subfingerprints
	DurationSec int
}

// Generator produces acoustic fingerprints for audio files
type Generator interface {
	Generate(ctx context.Context, path string, lengthSec int) (Result, error)
}

// Fpcalc runs the chromaprint fpcalc tool
type Fpcalc struct {
	Binary  string
	Timeout time.Duration // per invocation; 0 disables
}

// NewFpcalc returns an fpcalc generator using the binary on PATH
func NewFpcalc() *Fpcalc {
	return &Fpcalc{Binary: "fpcalc", Timeout: 30 * time.Second}
}

// CheckAvailable reports whether the fpcalc binary can be found
func (f *Fpcalc) CheckAvailable() error {
	if _, err := exec.LookPath(f.Binary); err != nil {
		return fmt.Errorf("%w: %s not found in PATH (install chromaprint)", util.ErrToolUnavailable, f.Binary)
	}
	return nil
}

// Generate runs fpcalc -raw on path
func (f *Fpcalc) Generate(ctx context.Context, path string, lengthSec int) (Result, error) {
	if lengthSec <= 0 {
		lengthSec = DefaultLengthSec
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.Binary, "-raw", "-length", strconv.Itoa(lengthSec), path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			msg := strings.TrimSpace(string(exitErr.Stderr))
			if msg == "" {
				msg = exitErr.Error()
			}
			return Result{}, fmt.Errorf("fpcalc failed: %s", msg)
		case errors.Is(err, exec.ErrNotFound):
			return Result{}, fmt.Errorf("%w: %s", util.ErrToolUnavailable, f.Binary)
		case ctx.Err() != nil:
			return Result{}, fmt.Errorf("fpcalc: %w", ctx.Err())
		default:
			return Result{}, fmt.Errorf("fpcalc: %w", err)
		}
	}

	return ParseOutput(out)
}

// ParseOutput reads the DURATION= and FINGERPRINT= lines of fpcalc -raw
func ParseOutput(out []byte) (Result, error) {
	var res Result
	var raw string

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "DURATION="):
			s := strings.TrimPrefix(line, "DURATION=")
			// May be "123" or "123.456"
			if idx := strings.Index(s, "."); idx >= 0 {
				s = s[:idx]
			}
			res.DurationSec, _ = strconv.Atoi(s)
		case strings.HasPrefix(line, "FINGERPRINT="):
			raw = strings.TrimPrefix(line, "FINGERPRINT=")
		}
	}

	fp, err := match.DecodeFingerprint(raw)
	if err != nil {
		return Result{}, fmt.Errorf("fpcalc output: %w", err)
	}
	res.Fingerprint = match.EncodeFingerprint(fp)
	return res, nil
}
