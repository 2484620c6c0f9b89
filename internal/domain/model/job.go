package model

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Workspace is the scratch directory owned by exactly one job.
type Workspace struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// File returns the absolute path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// Upload is one inbound file before it is staged into a workspace.
type Upload struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Job is one request's unit of work. It lives for a single
// request/response cycle.
type Job struct {
	ID        string
	Op        Operation
	Client    string
	Workspace *Workspace
	Inputs    []string // staged absolute paths, in upload order
	Params    map[string]string
	StartedAt time.Time
}

// Param returns a request parameter, or def when absent.
func (j *Job) Param(key, def string) string {
	if v, ok := j.Params[key]; ok {
		return v
	}
	return def
}

// Artifact is the located output handed to the delivery step.
type Artifact struct {
	Path         string
	DownloadName string
	ContentType  string
	Size         int64
}

// ToolCommand describes one external process invocation.
type ToolCommand struct {
	Tool string // logical name, e.g. "qpdf"
	Path string // executable
	Args []string
	Dir  string
}

// ExitResult is what the invoker observed about a finished process.
type ExitResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// SanitizeFilename keeps only the base name of a client-provided filename
// so that staging can never escape the workspace.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "input"
	}
	return name
}
