// Package transcodertest provides a fake encoder that writes plausible
// output files instead of running ffmpeg.
package transcodertest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/clipreview/backend/internal/transcoder"
)

// ErrEncoder is returned by failing fake passes.
var ErrEncoder = errors.New("fake encoder failure")

// Encoder records calls and fakes ffprobe/ffmpeg behavior.
type Encoder struct {
	mu sync.Mutex

	Info transcoder.ProbeResult

	ProbeErr    error
	FailPass    int  // pass number that fails, 0 for none
	FailSegment bool // segmentation fails after writing partial output
	OmitEndList bool // playlist written without #EXT-X-ENDLIST
	DropSegment bool // last segment file is not written

	Passes   []transcoder.EncodeArgs
	Segments []transcoder.SegmentArgs
}

// New returns a fake encoder that reports the given source properties.
func New(width, height int, fps, duration float64) *Encoder {
	return &Encoder{Info: transcoder.ProbeResult{
		Width: width, Height: height, FPS: fps, Duration: duration,
		VideoCodec: "h264", HasAudio: true,
	}}
}

func (e *Encoder) Probe(_ context.Context, path string) (*transcoder.ProbeResult, error) {
	if e.ProbeErr != nil {
		return nil, e.ProbeErr
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	info := e.Info
	return &info, nil
}

func (e *Encoder) EncodePass(ctx context.Context, a transcoder.EncodeArgs) (string, error) {
	e.mu.Lock()
	e.Passes = append(e.Passes, a)
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if a.Pass == 2 && slices.Contains(a.Args(), "-crf") {
		return "constant rate-factor is incompatible with 2pass", ErrEncoder
	}
	if err := os.WriteFile(a.PassLogFile+"-0.log", []byte("stats"), 0o600); err != nil {
		return "", err
	}
	if a.Pass == 2 {
		if err := os.WriteFile(a.Output, []byte("canonical:"+a.Input), 0o600); err != nil {
			return "", err
		}
	}
	if a.Pass == e.FailPass {
		return "Error while opening encoder for output stream", ErrEncoder
	}
	return "frame=  100 fps=50", nil
}

// PassCount returns the number of encode passes run so far.
func (e *Encoder) PassCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Passes)
}

func (e *Encoder) Segment(ctx context.Context, a transcoder.SegmentArgs) (string, error) {
	e.mu.Lock()
	e.Segments = append(e.Segments, a)
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n := int(math.Ceil(e.Info.Duration / float64(a.SegmentSeconds)))
	var pl strings.Builder
	pl.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	fmt.Fprintf(&pl, "#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:VOD\n", a.SegmentSeconds)
	remaining := e.Info.Duration
	for i := 0; i < n; i++ {
		name := fmt.Sprintf(a.SegmentPattern, i)
		d := math.Min(remaining, float64(a.SegmentSeconds))
		remaining -= d
		fmt.Fprintf(&pl, "#EXTINF:%.6f,\n%s\n", d, name)
		if e.DropSegment && i == n-1 {
			continue
		}
		if err := os.WriteFile(filepath.Join(a.OutputDir, name), []byte("ts"), 0o600); err != nil {
			return "", err
		}
	}
	if !e.OmitEndList {
		pl.WriteString("#EXT-X-ENDLIST\n")
	}
	if err := os.WriteFile(filepath.Join(a.OutputDir, a.PlaylistName), []byte(pl.String()), 0o600); err != nil {
		return "", err
	}
	if e.FailSegment {
		return "Conversion failed!", ErrEncoder
	}
	return "", nil
}
