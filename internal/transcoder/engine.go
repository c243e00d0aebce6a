package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipreview/backend/pkg/storage"
)

const (
	canonicalName  = "standardized.mp4"
	passLogName    = "ffmpeg2pass"
	segmentPattern = "segment%03d.ts"
)

// PackageResult describes a published HLS playlist.
type PackageResult struct {
	PlaylistKey string
	Segments    int
	Duration    float64
}

// Engine runs the standardization and packaging stages.
type Engine struct {
	enc     Encoder
	store   storage.Backend
	policy  Policy
	workDir string
	logger  *zap.Logger
}

// NewEngine creates an engine writing intermediate files under workDir and
// publishing HLS output to store.
func NewEngine(enc Encoder, store storage.Backend, policy Policy, workDir string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("transcode policy: %w", err)
	}
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "clipreview")
	}
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Engine{enc: enc, store: store, policy: policy, workDir: workDir, logger: logger}, nil
}

// Policy returns the engine's output policy.
func (e *Engine) Policy() Policy { return e.policy }

// WorkDir returns the per-video scratch directory.
func (e *Engine) WorkDir(videoID uuid.UUID) string {
	return filepath.Join(e.workDir, videoID.String())
}

func (e *Engine) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.policy.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.policy.StageTimeout)
}

// Standardize encodes inputPath into the canonical profile and returns the
// path of the canonical file. The output path depends only on videoID, so a
// re-run overwrites the previous output.
func (e *Engine) Standardize(ctx context.Context, inputPath string, videoID uuid.UUID) (string, error) {
	dir := e.WorkDir(videoID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", &TranscodeError{Stage: "prepare", Err: err}
	}
	out := filepath.Join(dir, canonicalName)
	passLog := filepath.Join(dir, passLogName)
	defer removePassLogs(passLog)

	ctx, cancel := e.stageContext(ctx)
	defer cancel()

	probe, err := e.enc.Probe(ctx, inputPath)
	if err != nil {
		return "", &TranscodeError{Stage: "probe", Err: err}
	}
	filters := BuildFilters(*probe, e.policy)
	e.logger.Info("standardizing video",
		zap.String("video_id", videoID.String()),
		zap.Int("width", probe.Width),
		zap.Int("height", probe.Height),
		zap.Float64("fps", probe.FPS),
		zap.Strings("filters", filters),
	)

	for pass := 1; pass <= 2; pass++ {
		output, err := e.enc.EncodePass(ctx, EncodeArgs{
			Input:       inputPath,
			Output:      out,
			Pass:        pass,
			PassLogFile: passLog,
			Filters:     filters,
			Policy:      e.policy,
		})
		if err != nil {
			_ = os.Remove(out)
			return "", &TranscodeError{Stage: fmt.Sprintf("pass%d", pass), Output: output, Err: err}
		}
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(out)
		if err == nil {
			err = errors.New("encoder produced an empty file")
		}
		return "", &TranscodeError{Stage: "verify", Err: err}
	}
	return out, nil
}

func removePassLogs(prefix string) {
	matches, _ := filepath.Glob(prefix + "*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// Package segments canonicalPath into HLS and publishes it to the storage
// backend under hls/{videoID}/. Segments are uploaded before the playlist, so
// a published playlist never references a missing segment. On failure
// everything under the prefix is removed.
func (e *Engine) Package(ctx context.Context, canonicalPath string, videoID uuid.UUID) (*PackageResult, error) {
	id := videoID.String()
	dir := e.WorkDir(videoID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &PackageError{Stage: "prepare", Err: err}
	}
	tmp, err := os.MkdirTemp(dir, "hls-*")
	if err != nil {
		return nil, &PackageError{Stage: "prepare", Err: err}
	}
	defer os.RemoveAll(tmp)

	stageCtx, cancel := e.stageContext(ctx)
	defer cancel()

	output, err := e.enc.Segment(stageCtx, SegmentArgs{
		Input:          canonicalPath,
		OutputDir:      tmp,
		PlaylistName:   storage.PlaylistName,
		SegmentPattern: segmentPattern,
		SegmentSeconds: e.policy.SegmentSeconds,
	})
	if err != nil {
		return nil, &PackageError{Stage: "segment", Output: output, Err: err}
	}

	pl, err := e.readLocalPlaylist(filepath.Join(tmp, storage.PlaylistName))
	if err != nil {
		return nil, &PackageError{Stage: "verify", Output: output, Err: err}
	}
	for _, seg := range pl.Segments {
		if filepath.Base(seg.URI) != seg.URI {
			return nil, &PackageError{Stage: "verify", Err: fmt.Errorf("unexpected segment uri %q", seg.URI)}
		}
		if _, err := os.Stat(filepath.Join(tmp, seg.URI)); err != nil {
			return nil, &PackageError{Stage: "verify", Err: fmt.Errorf("segment %s: %w", seg.URI, err)}
		}
	}

	prefix := storage.HLSPrefix(id)
	// Leftovers from an earlier failed run.
	if err := e.store.DeletePrefix(ctx, prefix); err != nil {
		return nil, &PackageError{Stage: "publish", Err: err}
	}
	if err := e.publish(ctx, tmp, id, pl); err != nil {
		if derr := e.store.DeletePrefix(context.WithoutCancel(ctx), prefix); derr != nil {
			e.logger.Error("cleanup partial hls output failed", zap.String("video_id", id), zap.Error(derr))
		}
		return nil, &PackageError{Stage: "publish", Err: err}
	}

	res := &PackageResult{
		PlaylistKey: storage.HLSKey(id, storage.PlaylistName),
		Segments:    len(pl.Segments),
		Duration:    pl.Duration(),
	}
	e.logger.Info("published hls playlist",
		zap.String("video_id", id),
		zap.Int("segments", res.Segments),
		zap.Duration("duration", time.Duration(res.Duration*float64(time.Second))),
	)
	return res, nil
}

func (e *Engine) readLocalPlaylist(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()
	pl, err := ParsePlaylist(f)
	if err != nil {
		return nil, err
	}
	if !pl.EndList {
		return nil, errors.New("playlist is not complete (no #EXT-X-ENDLIST)")
	}
	if len(pl.Segments) == 0 {
		return nil, errors.New("playlist has no segments")
	}
	return pl, nil
}

func (e *Engine) publish(ctx context.Context, dir, id string, pl *Playlist) error {
	for _, seg := range pl.Segments {
		if err := e.putFile(ctx, filepath.Join(dir, seg.URI), storage.HLSKey(id, seg.URI)); err != nil {
			return err
		}
	}
	return e.putFile(ctx, filepath.Join(dir, storage.PlaylistName), storage.HLSKey(id, storage.PlaylistName))
}

func (e *Engine) putFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = e.store.Put(ctx, key, f, storage.ContentTypeForFilename(key))
	return err
}
