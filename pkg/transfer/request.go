package transfer

import (
	"fmt"
	"strings"
)

// Request describes one upload invocation. Directory traversal derives a copy per level
// with adjusted paths.
type Request struct {
	SourcePath        string
	DestinationPath   string
	Overwrite         bool
	UploadPrefix      string
	ComputeSignature  bool
	CompressDirectory bool
	RetryCount        int
}

func (r Request) withPaths(source, destination string) Request {
	r.SourcePath = source
	r.DestinationPath = destination
	return r
}

// DefaultDestination is used when no destination path was given.
func DefaultDestination(username string) string {
	return "/home/" + username
}

type Outcome int

const (
	OutcomeUploaded Outcome = iota + 1
	OutcomeSkippedAlreadyCurrent
	OutcomeSkippedUnreadable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeSkippedAlreadyCurrent:
		return "skipped_already_current"
	case OutcomeSkippedUnreadable:
		return "skipped_unreadable"
	default:
		return "unknown"
	}
}

// TraversalError aborts a directory upload. It carries the directory pair being processed
// when the failure happened.
type TraversalError struct {
	LocalPath  string
	RemotePath string
	Cause      error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("upload directory %s to %s: %v", e.LocalPath, e.RemotePath, e.Cause)
}

func (e *TraversalError) Unwrap() error {
	return e.Cause
}

func joinRemote(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// remoteDir returns the directory portion of p including the trailing slash.
func remoteDir(p string) string {
	return p[:strings.LastIndex(p, "/")+1]
}

func remoteBase(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}
