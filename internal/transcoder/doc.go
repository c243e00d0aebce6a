// Package transcoder normalizes uploaded videos into one canonical H.264/AAC
// profile and packages canonical files as HLS playlists.
//
// External encoder work goes through the Encoder interface; FFmpeg is the
// production implementation and tests substitute a fake that writes files.
package transcoder
