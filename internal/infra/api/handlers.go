package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/infra/logging"
	"neunovapdf-backend/internal/usecase"

	"github.com/oapi-codegen/runtime"
)

// multipartMemory is how much of a multipart body is buffered in memory;
// the rest spills to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleJob(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		ctx := logging.WithClient(r.Context(), logging.Redact(client, s.opts.Dev))

		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
		form, err := parseForm(r)
		if form != nil {
			defer func() { _ = form.RemoveAll() }()
		}
		if err != nil {
			s.fail(ctx, w, err)
			return
		}

		req := usecase.JobRequest{Op: rt.op, Client: client, Params: map[string]string{}}
		if form != nil {
			req.Uploads = uploads(form, rt.fileField, rt.multi)
		}
		if err := bindParams(r.Form, rt.params, req.Params); err != nil {
			s.fail(ctx, w, err)
			return
		}

		started := false
		err = s.jobs.Run(ctx, req, func(ctx context.Context, a *model.Artifact) error {
			return stream(w, a, &started)
		})
		if err == nil {
			return
		}
		if started {
			// headers are gone; the runner already logged the failure
			return
		}
		if errors.Is(err, context.Canceled) {
			// nobody is listening
			return
		}
		s.fail(ctx, w, err)
	}
}

// parseForm reads a multipart body. A non-multipart request is not an
// error here; the missing files surface as a validation error later.
func parseForm(r *http.Request) (*multipart.Form, error) {
	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case err == nil:
		return r.MultipartForm, nil
	case errors.Is(err, http.ErrNotMultipart):
		if perr := r.ParseForm(); perr != nil {
			return nil, tooLargeOr(perr, domain.NewValidationError("malformed form body"))
		}
		return nil, nil
	default:
		return r.MultipartForm, tooLargeOr(err, domain.NewValidationError("malformed multipart body"))
	}
}

func tooLargeOr(err, fallback error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
		return domain.ErrPayloadTooLarge
	}
	return fallback
}

func uploads(form *multipart.Form, field string, multi bool) []model.Upload {
	headers := form.File[field]
	if !multi && len(headers) > 1 {
		headers = headers[:1]
	}
	out := make([]model.Upload, 0, len(headers))
	for _, fh := range headers {
		out = append(out, model.Upload{
			Name: fh.Filename,
			Size: fh.Size,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return out
}

// bindParams copies the route's form fields into dst. Only fields that are
// present are copied, so "absent" and "empty" stay distinguishable.
// Integer fields are bound with the OpenAPI form-style binder.
func bindParams(form url.Values, params []param, dst map[string]string) error {
	for _, p := range params {
		vals, ok := form[p.name]
		if !ok || len(vals) == 0 {
			continue
		}
		if !p.integer {
			dst[p.name] = vals[0]
			continue
		}
		if strings.TrimSpace(vals[0]) == "" {
			continue
		}
		var v *int
		if err := runtime.BindQueryParameter("form", true, false, p.name, url.Values{p.name: vals[:1]}, &v); err != nil {
			return domain.NewValidationError("%s must be an integer", p.name)
		}
		if v != nil {
			dst[p.name] = strconv.Itoa(*v)
		}
	}
	return nil
}

func stream(w http.ResponseWriter, a *model.Artifact, started *bool) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.DownloadName}))
	h.Set("Content-Length", strconv.FormatInt(a.Size, 10))
	*started = true
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, f)
	return err
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

const contactMaxBytes = 64 << 10

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, contactMaxBytes)
	var req contactRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.fail(r.Context(), w, tooLargeOr(err, domain.NewValidationError("invalid request body")))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.fail(r.Context(), w, tooLargeOr(err, domain.NewValidationError("invalid request body")))
			return
		}
		req = contactRequest{Name: r.FormValue("name"), Email: r.FormValue("email"), Message: r.FormValue("message")}
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}

	logging.With(r.Context(), s.log).Info().
		Str("name", req.Name).
		Str("email", logging.Redact(req.Email, s.opts.Dev)).
		Int("message_len", len(req.Message)).
		Msg("contact received")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Contact received"})
}

// clientKey identifies the caller for quota purposes: the peer address,
// else the first forwarded-for hop, else a shared sentinel.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	return "anon"
}
