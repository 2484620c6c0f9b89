package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/infra/metrics"
	"neunovapdf-backend/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// JobRunner executes one operation request end to end.
type JobRunner interface {
	Run(ctx context.Context, req usecase.JobRequest, deliver usecase.DeliverFunc) error
}

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy  bool
	CORSOrigins []string
	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
	StaticDir   string
	Dev         bool
}

// Server is the HTTP gateway in front of the job pipelines.
type Server struct {
	jobs JobRunner
	opts Options
	log  *zerolog.Logger
	now  func() time.Time
}

func NewServer(jobs JobRunner, opts Options, logger *zerolog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	l := logger.With().Str("component", "HTTP").Logger()
	return &Server{jobs: jobs, opts: opts, log: &l, now: time.Now}
}

// route describes one job endpoint. The OpenAPI document is generated from
// the same table.
type route struct {
	path      string
	op        model.OpName
	fileField string
	multi     bool
	params    []param
	summary   string
}

type param struct {
	name    string
	integer bool
	desc    string
}

var routes = []route{
	{"/convert", model.OpConvert, "file", false, []param{{"target", false, "pdf, docx, xlsx, pptx or any format soffice accepts"}}, "Convert an office document"},
	{"/images/resize", model.OpResize, "file", false, []param{
		{"mode", false, "fit, cover, contain, crop or pad"},
		{"width", true, "target width in pixels"},
		{"height", true, "target height in pixels"},
	}, "Resize an image to JPEG"},
	{"/pdf/merge", model.OpMerge, "files", true, nil, "Merge PDFs in upload order"},
	{"/pdf/split", model.OpSplit, "file", false, nil, "Split a PDF into one file per page"},
	{"/pdf/rotate", model.OpRotate, "file", false, []param{{"angle", true, "degrees, a multiple of 90"}}, "Rotate every page"},
	{"/pdf/compress", model.OpCompress, "file", false, nil, "Compress a PDF"},
	{"/pdf/to-jpg", model.OpToJPG, "file", false, nil, "Rasterize every page to JPEG"},
	{"/pdf/from-jpg", model.OpFromImages, "files", true, nil, "Build a PDF from JPEG or PNG images"},
	{"/pdf/protect", model.OpProtect, "file", false, []param{{"password", false, "user and owner password"}}, "Encrypt a PDF"},
	{"/pdf/unlock", model.OpUnlock, "file", false, []param{{"password", false, "current password, may be empty"}}, "Decrypt a PDF"},
}

// Router builds the complete HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition", traceHeader},
		MaxAge:         300,
	}))
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/ping", s.handlePing)
	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Post("/contact", s.handleContact)
		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.opts.RequestTimeout))
			for _, rt := range routes {
				r.Post(rt.path, s.handleJob(rt))
			}
		})
	})
	r.Get("/api-docs/openapi.json", s.handleDocs)

	if s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, metrics.Handler())
	}
	s.mountStatic(r)
	return r
}

// mountStatic serves the legal pages, sitemap and robots file when a
// static directory is configured.
func (s *Server) mountStatic(r chi.Router) {
	dir := s.opts.StaticDir
	if dir == "" {
		return
	}
	policies := filepath.Join(dir, "policies")
	if info, err := os.Stat(policies); err == nil && info.IsDir() {
		r.Handle("/policies/*", http.StripPrefix("/policies/", http.FileServer(http.Dir(policies))))
	}
	for _, name := range []string{"sitemap.xml", "robots.txt"} {
		p := filepath.Join(dir, name)
		r.Get("/"+name, func(w http.ResponseWriter, req *http.Request) {
			if _, err := os.Stat(p); err != nil {
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			http.ServeFile(w, req, p)
		})
	}
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": s.now().UnixMilli()})
}
