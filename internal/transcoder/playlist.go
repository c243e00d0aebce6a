package transcoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Segment is one media segment referenced by a playlist.
type Segment struct {
	URI      string
	Duration float64
}

// Playlist is a parsed HLS media playlist.
type Playlist struct {
	TargetDuration int
	Segments       []Segment
	EndList        bool
}

// Duration is the sum of segment durations.
func (p *Playlist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// ParsePlaylist reads an HLS media playlist.
func ParsePlaylist(r io.Reader) (*Playlist, error) {
	sc := bufio.NewScanner(r)
	pl := &Playlist{}
	first := true
	pending := -1.0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return nil, errors.New("missing #EXTM3U header")
			}
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("target duration: %w", err)
			}
			pl.TargetDuration = v
		case strings.HasPrefix(line, "#EXTINF:"):
			val := strings.TrimPrefix(line, "#EXTINF:")
			val, _, _ = strings.Cut(val, ",")
			d, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("segment duration: %w", err)
			}
			pending = d
		case line == "#EXT-X-ENDLIST":
			pl.EndList = true
		case strings.HasPrefix(line, "#"):
		default:
			if pending < 0 {
				return nil, fmt.Errorf("segment %q without #EXTINF", line)
			}
			pl.Segments = append(pl.Segments, Segment{URI: line, Duration: pending})
			pending = -1
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	if first {
		return nil, errors.New("empty playlist")
	}
	return pl, nil
}

// RewriteURIs returns raw with every segment URI line replaced by fn(uri).
// Tags and comments are passed through unchanged.
func RewriteURIs(raw []byte, fn func(uri string) (string, error)) ([]byte, error) {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			u, err := fn(trimmed)
			if err != nil {
				return nil, err
			}
			line = u
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
