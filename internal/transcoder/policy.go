package transcoder

import (
	"fmt"
	"strings"
	"time"
)

// fpsTolerance absorbs NTSC-style rates such as 30000/1001 reported as 29.97.
const fpsTolerance = 0.01

// Policy holds the fixed output profile. Values come from configuration.
type Policy struct {
	MaxHeight       int
	MaxFPS          int
	SegmentSeconds  int
	VideoBitrate    string
	Preset          string
	AudioCodec      string
	AudioBitrate    string
	AudioSampleRate int
	AudioChannels   int
	StageTimeout    time.Duration
}

// DefaultPolicy returns the H.264/AAC <=720p/30fps profile with 10 second segments.
func DefaultPolicy() Policy {
	return Policy{
		MaxHeight:       720,
		MaxFPS:          30,
		SegmentSeconds:  10,
		VideoBitrate:    "2500k",
		Preset:          "medium",
		AudioCodec:      "aac",
		AudioBitrate:    "128k",
		AudioSampleRate: 44100,
		AudioChannels:   2,
		StageTimeout:    30 * time.Minute,
	}
}

// Validate rejects policies that cannot produce output.
func (p Policy) Validate() error {
	switch {
	case p.MaxHeight <= 0:
		return fmt.Errorf("max height must be positive, got %d", p.MaxHeight)
	case p.MaxFPS <= 0:
		return fmt.Errorf("max fps must be positive, got %d", p.MaxFPS)
	case p.SegmentSeconds <= 0:
		return fmt.Errorf("segment seconds must be positive, got %d", p.SegmentSeconds)
	case !validBitrate(p.VideoBitrate):
		return fmt.Errorf("video bitrate must look like 2500k or 2M, got %q", p.VideoBitrate)
	case p.AudioCodec == "" || p.AudioBitrate == "":
		return fmt.Errorf("audio codec and bitrate are required")
	case p.AudioSampleRate <= 0 || p.AudioChannels <= 0:
		return fmt.Errorf("audio sample rate and channels must be positive")
	}
	return nil
}

// validBitrate accepts ffmpeg rate strings: digits with an optional k or M suffix.
func validBitrate(s string) bool {
	digits := strings.TrimRight(s, "kKmM")
	if digits == "" || len(s)-len(digits) > 1 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return strings.Trim(digits, "0") != ""
}

// BuildFilters returns the video filter chain for a probed input: a scale
// down to MaxHeight only when the source is taller, and an fps cap only when
// the source is faster. Inputs already within bounds get no filter.
func BuildFilters(probe ProbeResult, p Policy) []string {
	var filters []string
	if probe.Height > p.MaxHeight {
		// -2 keeps the aspect ratio with an even width for yuv420p.
		filters = append(filters, fmt.Sprintf("scale=-2:%d", p.MaxHeight))
	}
	if probe.FPS > float64(p.MaxFPS)+fpsTolerance {
		filters = append(filters, fmt.Sprintf("fps=%d", p.MaxFPS))
	}
	return filters
}

// FilterChain joins filters into an ffmpeg -vf argument.
func FilterChain(filters []string) string {
	return strings.Join(filters, ",")
}
