package transcoder

import "fmt"

// maxDiagnostic bounds how much encoder output is carried in error messages.
const maxDiagnostic = 512

// TranscodeError is a failed standardization run. Output holds the encoder's
// diagnostic output.
type TranscodeError struct {
	Stage  string
	Output string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("transcode %s: %v: %s", e.Stage, e.Err, tail(e.Output, maxDiagnostic))
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// PackageError is a failed HLS packaging run. No playlist is published when
// it is returned.
type PackageError struct {
	Stage  string
	Output string
	Err    error
}

func (e *PackageError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("package %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("package %s: %v: %s", e.Stage, e.Err, tail(e.Output, maxDiagnostic))
}

func (e *PackageError) Unwrap() error { return e.Err }

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
