package transcoder

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	run   func(name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(name, args...)
}

const ffprobeJSON = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "60/1", "avg_frame_rate": "60000/1001"}
  ],
  "format": {"duration": "95.250000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(ffprobeJSON))
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 59.94, info.FPS, 0.01)
	assert.InDelta(t, 95.25, info.Duration, 0.001)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.True(t, info.HasAudio)
}

func TestParseProbeNoVideo(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	assert.Error(t, err)

	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.001)
	assert.Equal(t, 25.0, parseRate("25"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate(""))
}

func TestFFmpegProbe(t *testing.T) {
	r := &fakeRunner{run: func(name string, args ...string) (commandResult, error) {
		return commandResult{Stdout: ffprobeJSON}, nil
	}}
	f := NewFFmpeg("my-ffmpeg", "my-ffprobe")
	f.runner = r

	info, err := f.Probe(context.Background(), "/in.mov")
	require.NoError(t, err)
	assert.Equal(t, 1080, info.Height)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "my-ffprobe", r.calls[0][0])
	assert.Equal(t, "/in.mov", r.calls[0][len(r.calls[0])-1])
}

func TestFFmpegProbeFailure(t *testing.T) {
	f := NewFFmpeg("", "")
	f.runner = &fakeRunner{run: func(string, ...string) (commandResult, error) {
		return commandResult{Stderr: "Invalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
	}}
	_, err := f.Probe(context.Background(), "/in.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestEncodeArgs(t *testing.T) {
	p := DefaultPolicy()
	pass1 := encodeArgs(EncodeArgs{Input: "in.mov", Output: "out.mp4", Pass: 1, PassLogFile: "/w/log", Filters: []string{"scale=-2:720", "fps=30"}, Policy: p})
	assert.Contains(t, pass1, "scale=-2:720,fps=30")
	assert.Equal(t, os.DevNull, pass1[len(pass1)-1])
	assert.Contains(t, pass1, "-an")
	assert.NotContains(t, pass1, "out.mp4")

	pass2 := encodeArgs(EncodeArgs{Input: "in.mov", Output: "out.mp4", Pass: 2, PassLogFile: "/w/log", Policy: p})
	assert.NotContains(t, pass2, "-vf")
	assert.Equal(t, "out.mp4", pass2[len(pass2)-1])
	assertArg(t, pass2, "-map_metadata", "-1")
	assertArg(t, pass2, "-c:a", "aac")
	assertArg(t, pass2, "-b:a", "128k")
	assertArg(t, pass2, "-ar", "44100")
	assertArg(t, pass2, "-ac", "2")
	assertArg(t, pass2, "-pass", "2")

	// libx264 refuses a rate factor when reading pass stats, so both passes
	// must share the same bitrate target.
	for _, args := range [][]string{pass1, pass2} {
		assert.NotContains(t, args, "-crf")
		assertArg(t, args, "-b:v", "2500k")
	}
}

func TestSegmentArgs(t *testing.T) {
	args := segmentArgs(SegmentArgs{Input: "c.mp4", OutputDir: "/out", PlaylistName: "playlist.m3u8", SegmentPattern: "segment%03d.ts", SegmentSeconds: 10})
	assertArg(t, args, "-c", "copy")
	assertArg(t, args, "-hls_time", "10")
	assertArg(t, args, "-hls_list_size", "0")
	assertArg(t, args, "-hls_segment_filename", "/out/segment%03d.ts")
	assert.Equal(t, "/out/playlist.m3u8", args[len(args)-1])
}

func TestFFmpegEncodePassReturnsDiagnostics(t *testing.T) {
	f := NewFFmpeg("", "")
	f.runner = &fakeRunner{run: func(string, ...string) (commandResult, error) {
		return commandResult{Stderr: "Unknown encoder 'libx264'"}, errors.New("exit status 1")
	}}
	out, err := f.EncodePass(context.Background(), EncodeArgs{Pass: 1, Policy: DefaultPolicy()})
	require.Error(t, err)
	assert.Contains(t, out, "Unknown encoder")
}

func assertArg(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			assert.Equal(t, value, args[i+1], "value of %s", flag)
			return
		}
	}
	t.Errorf("flag %s not found in %v", flag, args)
}
