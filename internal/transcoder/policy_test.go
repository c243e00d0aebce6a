package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFilters(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		name  string
		probe ProbeResult
		want  []string
	}{
		{"1080p60 gets scale and fps", ProbeResult{Width: 1920, Height: 1080, FPS: 60}, []string{"scale=-2:720", "fps=30"}},
		{"1080p30 gets scale only", ProbeResult{Width: 1920, Height: 1080, FPS: 30}, []string{"scale=-2:720"}},
		{"720p60 gets fps only", ProbeResult{Width: 1280, Height: 720, FPS: 59.94}, []string{"fps=30"}},
		{"720p30 untouched", ProbeResult{Width: 1280, Height: 720, FPS: 30}, nil},
		{"ntsc rate untouched", ProbeResult{Width: 640, Height: 480, FPS: 29.97}, nil},
		{"portrait 1080x1920 scaled", ProbeResult{Width: 1080, Height: 1920, FPS: 30}, []string{"scale=-2:720"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildFilters(tc.probe, p))
		})
	}
}

func TestBuildFiltersUsesPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.MaxHeight = 480
	p.MaxFPS = 24
	got := BuildFilters(ProbeResult{Height: 720, FPS: 30}, p)
	assert.Equal(t, []string{"scale=-2:480", "fps=24"}, got)
	assert.Equal(t, "scale=-2:480,fps=24", FilterChain(got))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := []func(*Policy){
		func(p *Policy) { p.MaxHeight = 0 },
		func(p *Policy) { p.MaxFPS = -1 },
		func(p *Policy) { p.SegmentSeconds = 0 },
		func(p *Policy) { p.VideoBitrate = "" },
		func(p *Policy) { p.VideoBitrate = "fast" },
		func(p *Policy) { p.VideoBitrate = "0k" },
		func(p *Policy) { p.AudioCodec = "" },
		func(p *Policy) { p.AudioChannels = 0 },
	}
	for i, mut := range bad {
		p := DefaultPolicy()
		mut(&p)
		assert.Error(t, p.Validate(), "case %d", i)
	}
}

func TestPolicyVideoBitrate(t *testing.T) {
	for _, ok := range []string{"2500k", "2M", "800000"} {
		p := DefaultPolicy()
		p.VideoBitrate = ok
		assert.NoError(t, p.Validate(), ok)
	}
	for _, bad := range []string{"k", "2.5M", "25kk", "-1k"} {
		p := DefaultPolicy()
		p.VideoBitrate = bad
		assert.Error(t, p.Validate(), bad)
	}
}
