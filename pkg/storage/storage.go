package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

const (
	// FolderUploads is the prefix for raw uploads.
	FolderUploads = "uploads"
	// FolderVideos is the prefix for standardized videos.
	FolderVideos = "videos"
	// FolderHLS is the prefix for HLS playlists and segments.
	FolderHLS = "hls"
	// PlaylistName is the object name of an HLS index playlist.
	PlaylistName = "playlist.m3u8"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Allowed upload MIME types and extensions.
var (
	AllowedVideoTypes = map[string]string{
		"video/mp4":        ".mp4",
		"video/quicktime":  ".mov",
		"video/webm":       ".webm",
		"video/x-matroska": ".mkv",
		"video/x-msvideo":  ".avi",
		"video/mpeg":       ".mpeg",
	}
	AllowedVideoExtensions = map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
		".mkv":  "video/x-matroska",
		".avi":  "video/x-msvideo",
		".mpeg": "video/mpeg",
		".mpg":  "video/mpeg",
	}
)

// Backend is a uniform object store over a local filesystem or a remote bucket.
type Backend interface {
	// Put stores r under key and returns a locator for the stored object.
	// The object is never visible under key until it is complete.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Get opens the object stored under key. Caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// URLFor returns a URL a client can fetch the object from. Remote
	// backends sign it for expiry; local backends ignore expiry.
	URLFor(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// Error is an I/O failure against a storage backend.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &Error{Op: op, Key: key, Err: err}
}

// ValidateVideoFileType returns true if the content type or extension is an accepted video upload.
func ValidateVideoFileType(contentType, filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	if contentType != "" {
		ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
		if _, ok := AllowedVideoTypes[ct]; ok {
			return true
		}
	}
	if ext != "" {
		if _, ok := AllowedVideoExtensions[ext]; ok {
			return true
		}
	}
	return false
}

// ContentTypeForFilename returns the MIME type for a storage key or filename.
func ContentTypeForFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	}
	if ct, ok := AllowedVideoExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// RawKey returns the key for a raw upload: uploads/{video_id}/original{ext}.
func RawKey(videoID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := AllowedVideoExtensions[ext]; !ok {
		ext = ""
	}
	return path.Join(FolderUploads, videoID, "original"+ext)
}

// StandardizedKey returns the key for the canonical file: videos/{video_id}/standardized.mp4.
func StandardizedKey(videoID string) string {
	return path.Join(FolderVideos, videoID, "standardized.mp4")
}

// HLSPrefix returns the prefix holding a video's playlist and segments: hls/{video_id}/.
func HLSPrefix(videoID string) string {
	return FolderHLS + "/" + videoID + "/"
}

// HLSKey returns the key of one HLS file for a video.
func HLSKey(videoID, name string) string {
	return HLSPrefix(videoID) + path.Base(name)
}

// UploadPrefix returns the prefix holding a video's raw upload.
func UploadPrefix(videoID string) string {
	return FolderUploads + "/" + videoID + "/"
}

// VideoPrefix returns the prefix holding a video's standardized file.
func VideoPrefix(videoID string) string {
	return FolderVideos + "/" + videoID + "/"
}
