package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	"github.com/franz/dupe-janitor/internal/util"
)

// FFprobeInfo represents the output from ffprobe
type FFprobeInfo struct {
	Streams []FFprobeStream `json:"streams"`
	Format  *FFprobeFormat  `json:"format"`
}

// IntOrString can unmarshal both integers and strings from JSON
type IntOrString struct {
	Value int
}

// UnmarshalJSON accepts 16, "16", "" and "N/A"
func (i *IntOrString) UnmarshalJSON(data []byte) error {
	var intVal int
	if err := json.Unmarshal(data, &intVal); err == nil {
		i.Value = intVal
		return nil
	}

	var strVal string
	if err := json.Unmarshal(data, &strVal); err != nil {
		return err
	}

	parsed, err := strconv.Atoi(strVal)
	if err != nil {
		i.Value = 0
		return nil
	}
	i.Value = parsed
	return nil
}

// FFprobeStream represents one stream of the container
type FFprobeStream struct {
	Index      int         `json:"index"`
	CodecName  string      `json:"codec_name"`
	CodecType  string      `json:"codec_type"`
	SampleRate IntOrString `json:"sample_rate"`
	Channels   int         `json:"channels"`
	Duration   string      `json:"duration"`
	BitRate    IntOrString `json:"bit_rate"`
}

// FFprobeFormat represents container format metadata
type FFprobeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    IntOrString       `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// AudioProperties are the stream properties the tag reader cannot provide
type AudioProperties struct {
	Codec       string
	DurationSec int
	BitrateKbps int
	SampleRate  int
}

// Properties extracts audio properties from the first audio stream,
// falling back to container values
func (info *FFprobeInfo) Properties() AudioProperties {
	var props AudioProperties

	var stream *FFprobeStream
	for i := range info.Streams {
		if info.Streams[i].CodecType == "audio" {
			stream = &info.Streams[i]
			break
		}
	}

	if stream != nil {
		props.Codec = stream.CodecName
		props.SampleRate = stream.SampleRate.Value
		props.BitrateKbps = stream.BitRate.Value / 1000
		props.DurationSec = parseSeconds(stream.Duration)
	}

	if info.Format != nil {
		if props.BitrateKbps == 0 {
			props.BitrateKbps = info.Format.BitRate.Value / 1000
		}
		if props.DurationSec == 0 {
			props.DurationSec = parseSeconds(info.Format.Duration)
		}
	}

	return props
}

func parseSeconds(s string) int {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(math.Round(f))
}

// RunFFprobe executes ffprobe and parses the JSON output
func RunFFprobe(ctx context.Context, path string) (*FFprobeInfo, error) {
	if !CheckFFprobeAvailable() {
		return nil, util.ErrToolUnavailable
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	return ParseFFprobe(output)
}

// ParseFFprobe decodes ffprobe's -print_format json output
func ParseFFprobe(output []byte) (*FFprobeInfo, error) {
	var info FFprobeInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &info, nil
}

// CheckFFprobeAvailable checks if ffprobe is available in PATH
func CheckFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
