package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe output the pipeline needs.
type ProbeResult struct {
	Width      int
	Height     int
	FPS        float64
	Duration   float64
	VideoCodec string
	HasAudio   bool
}

// EncodeArgs describes one pass of a two-pass encode.
type EncodeArgs struct {
	Input       string
	Output      string
	Pass        int
	PassLogFile string
	Filters     []string
	Policy      Policy
}

// SegmentArgs describes an HLS segmentation run.
type SegmentArgs struct {
	Input          string
	OutputDir      string
	PlaylistName   string
	SegmentPattern string
	SegmentSeconds int
}

// Encoder is the external encoding process.
type Encoder interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	// EncodePass runs one encode pass and returns the encoder's diagnostic output.
	EncodePass(ctx context.Context, args EncodeArgs) (string, error)
	// Segment splits an already encoded file into HLS segments without
	// re-encoding and returns the encoder's diagnostic output.
	Segment(ctx context.Context, args SegmentArgs) (string, error)
}

// commandResult is one finished process invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, err
	}
	return res, nil
}

// FFmpeg drives the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	runner     commandRunner
}

// NewFFmpeg returns an Encoder backed by the given binaries; empty names use PATH lookups.
func NewFFmpeg(ffmpegBin, ffprobeBin string) *FFmpeg {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpeg{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin, runner: execRunner{}}
}

// CheckBinaries verifies both binaries are resolvable.
func (f *FFmpeg) CheckBinaries() error {
	for _, bin := range []string{f.ffmpegBin, f.ffprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s binary not found: %w", bin, err)
		}
	}
	return nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads resolution, frame rate and duration with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	res, err := f.runner.Run(ctx, f.ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(res.Stderr))
	}
	return parseProbe([]byte(res.Stdout))
}

func parseProbe(raw []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	info := &ProbeResult{}
	foundVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.VideoCodec = s.CodecName
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, errors.New("no video stream")
	}
	if out.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}
	return info, nil
}

// parseRate parses ffprobe rates such as "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// EncodePass runs one x264 pass. Pass 1 only measures and discards its output.
func (f *FFmpeg) EncodePass(ctx context.Context, a EncodeArgs) (string, error) {
	res, err := f.runner.Run(ctx, f.ffmpegBin, encodeArgs(a)...)
	if err != nil {
		return res.Stderr, fmt.Errorf("ffmpeg pass %d: %w", a.Pass, err)
	}
	return res.Stderr, nil
}

// Args returns the ffmpeg arguments for this pass.
func (a EncodeArgs) Args() []string { return encodeArgs(a) }

func encodeArgs(a EncodeArgs) []string {
	p := a.Policy
	args := []string{"-y", "-hide_banner", "-i", a.Input}
	if len(a.Filters) > 0 {
		args = append(args, "-vf", FilterChain(a.Filters))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", p.Preset,
		"-b:v", p.VideoBitrate,
		"-pix_fmt", "yuv420p",
		"-pass", strconv.Itoa(a.Pass),
		"-passlogfile", a.PassLogFile,
	)
	if a.Pass == 1 {
		return append(args, "-an", "-f", "null", os.DevNull)
	}
	return append(args,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-map_metadata", "-1",
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
		"-ar", strconv.Itoa(p.AudioSampleRate),
		"-ac", strconv.Itoa(p.AudioChannels),
		"-movflags", "+faststart",
		a.Output,
	)
}

// Segment remuxes the input into HLS segments with stream copy.
func (f *FFmpeg) Segment(ctx context.Context, a SegmentArgs) (string, error) {
	res, err := f.runner.Run(ctx, f.ffmpegBin, segmentArgs(a)...)
	if err != nil {
		return res.Stderr, fmt.Errorf("ffmpeg segment: %w", err)
	}
	return res.Stderr, nil
}

func segmentArgs(a SegmentArgs) []string {
	return []string{
		"-y", "-hide_banner",
		"-i", a.Input,
		"-c", "copy",
		"-map", "0",
		"-f", "hls",
		"-hls_time", strconv.Itoa(a.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(a.OutputDir, a.SegmentPattern),
		filepath.Join(a.OutputDir, a.PlaylistName),
	}
}
