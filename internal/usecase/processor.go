package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"neunovapdf-backend/internal/domain"
	"neunovapdf-backend/internal/domain/model"
	"neunovapdf-backend/internal/domain/ports/adapter"
	"neunovapdf-backend/internal/infra/logging"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

var _ Pipelines = (*Processor)(nil)

// ToolPaths maps each external tool to its executable.
type ToolPaths struct {
	Soffice     string
	Ghostscript string
	Pdftoppm    string
	Qpdf        string
}

type ImageDefaults struct {
	Width        int
	Height       int
	MaxDimension int
}

// Processor implements the transform step of every operation.
type Processor struct {
	tools    adapter.ToolRunner
	pdf      adapter.PDFEngine
	resizer  adapter.ImageResizer
	archiver adapter.Archiver
	paths    ToolPaths
	image    ImageDefaults
	log      *zerolog.Logger
}

func NewProcessor(tools adapter.ToolRunner, pdf adapter.PDFEngine, resizer adapter.ImageResizer, archiver adapter.Archiver, paths ToolPaths, img ImageDefaults, logger *zerolog.Logger) *Processor {
	if img.Width <= 0 {
		img.Width = 800
	}
	if img.Height <= 0 {
		img.Height = 600
	}
	l := logger.With().Str("component", "Processor").Logger()
	return &Processor{tools: tools, pdf: pdf, resizer: resizer, archiver: archiver, paths: paths, image: img, log: &l}
}

const (
	paramTarget   = "target"
	paramMode     = "mode"
	paramWidth    = "width"
	paramHeight   = "height"
	paramAngle    = "angle"
	paramPassword = "password"
)

func (p *Processor) Check(op model.Operation, params map[string]string) error {
	job := &model.Job{Op: op, Params: params}
	switch op.Name {
	case model.OpResize:
		_, err := p.resizeSpec(job)
		return err
	case model.OpRotate:
		_, err := rotation(job)
		return err
	case model.OpProtect:
		if job.Param(paramPassword, "") == "" {
			return domain.NewValidationError("password required")
		}
	case model.OpUnlock:
		// an empty password is legitimate for owner-only protection
		if _, ok := params[paramPassword]; !ok {
			return domain.NewValidationError("password required")
		}
	}
	return nil
}

func (p *Processor) Transform(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	if len(job.Inputs) == 0 {
		return nil, domain.NewValidationError("%s", job.Op.MissingInput)
	}
	switch job.Op.Name {
	case model.OpConvert:
		return p.convert(ctx, job)
	case model.OpResize:
		return p.resize(ctx, job)
	case model.OpMerge:
		return p.merge(ctx, job)
	case model.OpSplit:
		return p.split(ctx, job)
	case model.OpRotate:
		return p.rotate(ctx, job)
	case model.OpCompress:
		return p.compress(ctx, job)
	case model.OpToJPG:
		return p.toJPG(ctx, job)
	case model.OpFromImages:
		return p.fromImages(ctx, job)
	case model.OpProtect:
		return p.protect(ctx, job)
	case model.OpUnlock:
		return p.unlock(ctx, job)
	}
	return nil, fmt.Errorf("no pipeline for %q", job.Op.Name)
}

// convert runs LibreOffice headless. Each job gets its own profile inside
// the workspace; concurrent conversions sharing a profile fail.
func (p *Processor) convert(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	outDir := job.Workspace.File("out")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	profile := "file://" + filepath.ToSlash(job.Workspace.File(".lo-profile"))
	cmd := model.ToolCommand{
		Tool: model.ToolSoffice,
		Path: p.paths.Soffice,
		Args: []string{
			"-env:UserInstallation=" + profile,
			"--headless",
			"--convert-to", convertTarget(job.Param(paramTarget, "pdf")),
			"--outdir", outDir,
			job.Inputs[0],
		},
		Dir: job.Workspace.Path,
	}
	if _, err := p.tools.Run(ctx, cmd); err != nil {
		return nil, err
	}
	out, err := firstFile(outDir)
	if err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out, DownloadName: filepath.Base(out)}, nil
}

// convertTarget normalizes the requested format into a soffice --convert-to
// argument. Formats outside pdf/docx/xlsx/pptx pass through lowercased for
// the tool to accept or reject.
func convertTarget(target string) string {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "" {
		return "pdf"
	}
	return t
}

// firstFile returns the single regular file soffice wrote into dir.
func firstFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &domain.IntegrityError{Path: dir}
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", &domain.IntegrityError{Path: dir}
}

func (p *Processor) resizeSpec(job *model.Job) (adapter.ResizeSpec, error) {
	w, err := intParam(job, paramWidth, p.image.Width)
	if err != nil {
		return adapter.ResizeSpec{}, err
	}
	h, err := intParam(job, paramHeight, p.image.Height)
	if err != nil {
		return adapter.ResizeSpec{}, err
	}
	if w <= 0 || h <= 0 {
		return adapter.ResizeSpec{}, domain.NewValidationError("width and height must be positive")
	}
	if limit := p.image.MaxDimension; limit > 0 && (w > limit || h > limit) {
		return adapter.ResizeSpec{}, domain.NewValidationError("width and height must not exceed %d", limit)
	}
	mode := adapter.FitMode(strings.ToLower(strings.TrimSpace(job.Param(paramMode, ""))))
	switch mode {
	case adapter.FitCover, adapter.FitContain, adapter.FitCrop, adapter.FitPad, adapter.FitInside:
	default:
		mode = adapter.FitInside
	}
	return adapter.ResizeSpec{Width: w, Height: h, Mode: mode}, nil
}

func (p *Processor) resize(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	spec, err := p.resizeSpec(job)
	if err != nil {
		return nil, err
	}
	out := job.Workspace.File("resized.jpg")
	if err := p.resizer.Resize(ctx, job.Inputs[0], out, spec); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

func (p *Processor) merge(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	out := job.Workspace.File("merged.pdf")
	if err := p.pdf.Merge(ctx, job.Inputs, out); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

func (p *Processor) split(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	n, err := p.pdf.PageCount(ctx, job.Inputs[0])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("document has no pages")
	}
	dir := job.Workspace.File("pages")
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out := filepath.Join(dir, fmt.Sprintf("page-%d.pdf", i))
		if err := p.pdf.ExtractPage(ctx, job.Inputs[0], i, out); err != nil {
			return nil, err
		}
		pages = append(pages, out)
	}
	logging.With(ctx, p.log).Debug().Int("pages", n).Msg("split done")
	return p.bundle(ctx, job, "pages.zip", pages)
}

// rotation parses angle (default 90) and normalises it into [0,360).
func rotation(job *model.Job) (int, error) {
	a, err := intParam(job, paramAngle, 90)
	if err != nil {
		return 0, err
	}
	if a%90 != 0 {
		return 0, domain.NewValidationError("angle must be a multiple of 90")
	}
	return ((a % 360) + 360) % 360, nil
}

func (p *Processor) rotate(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	angle, err := rotation(job)
	if err != nil {
		return nil, err
	}
	out := job.Workspace.File("rotated.pdf")
	if angle == 0 {
		if err := copyFile(job.Inputs[0], out); err != nil {
			return nil, err
		}
		return &model.Artifact{Path: out}, nil
	}
	if err := p.pdf.Rotate(ctx, job.Inputs[0], angle, out); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

func (p *Processor) compress(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	out := job.Workspace.File("compressed.pdf")
	cmd := model.ToolCommand{
		Tool: model.ToolGhostscript,
		Path: p.paths.Ghostscript,
		Args: []string{
			"-sDEVICE=pdfwrite",
			"-dCompatibilityLevel=1.4",
			"-dPDFSETTINGS=/ebook",
			"-dNOPAUSE", "-dQUIET", "-dBATCH",
			"-sOutputFile=" + out,
			job.Inputs[0],
		},
		Dir: job.Workspace.Path,
	}
	if _, err := p.tools.Run(ctx, cmd); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

var pageNum = regexp.MustCompile(`(\d+)\.jpe?g$`)

func (p *Processor) toJPG(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	dir := job.Workspace.File("pages")
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	cmd := model.ToolCommand{
		Tool: model.ToolPdftoppm,
		Path: p.paths.Pdftoppm,
		Args: []string{"-jpeg", job.Inputs[0], filepath.Join(dir, "page")},
		Dir:  job.Workspace.Path,
	}
	if _, err := p.tools.Run(ctx, cmd); err != nil {
		return nil, err
	}

	// pdftoppm zero-pads page numbers to the width of the page count
	matches, err := doublestar.Glob(os.DirFS(dir), "page*.{jpg,jpeg}")
	if err != nil || len(matches) == 0 {
		return nil, &domain.IntegrityError{Path: dir}
	}
	sort.Slice(matches, func(i, j int) bool { return pageIndex(matches[i]) < pageIndex(matches[j]) })
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(dir, m)
	}
	return p.bundle(ctx, job, "images.zip", files)
}

func pageIndex(name string) int {
	m := pageNum.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// fromImages accepts JPEG and PNG; anything else is rejected before the
// PDF engine sees it.
func (p *Processor) fromImages(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	for _, in := range job.Inputs {
		if err := checkImage(in); err != nil {
			return nil, err
		}
	}
	out := job.Workspace.File("from-images.pdf")
	if err := p.pdf.FromImages(ctx, job.Inputs, out); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	if err != nil || (format != "jpeg" && format != "png") {
		return domain.NewValidationError("unsupported image format: %s", filepath.Base(path))
	}
	return nil
}

func (p *Processor) protect(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	pw := job.Param(paramPassword, "")
	if pw == "" {
		return nil, domain.NewValidationError("password required")
	}
	out := job.Workspace.File("protected.pdf")
	cmd := model.ToolCommand{
		Tool: model.ToolQpdf,
		Path: p.paths.Qpdf,
		Args: []string{"--encrypt", pw, pw, "256", "--", job.Inputs[0], out},
		Dir:  job.Workspace.Path,
	}
	if err := p.runQpdf(ctx, cmd, out); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

func (p *Processor) unlock(ctx context.Context, job *model.Job) (*model.Artifact, error) {
	out := job.Workspace.File("unlocked.pdf")
	cmd := model.ToolCommand{
		Tool: model.ToolQpdf,
		Path: p.paths.Qpdf,
		Args: []string{"--password=" + job.Param(paramPassword, ""), "--decrypt", job.Inputs[0], out},
		Dir:  job.Workspace.Path,
	}
	if err := p.runQpdf(ctx, cmd, out); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

// qpdfWarnings is qpdf's exit status for "succeeded with warnings".
const qpdfWarnings = 3

func (p *Processor) runQpdf(ctx context.Context, cmd model.ToolCommand, out string) error {
	_, err := p.tools.Run(ctx, cmd)
	var tf *domain.ToolFailure
	if errors.As(err, &tf) && !tf.TimedOut && tf.ExitCode == qpdfWarnings {
		if _, statErr := os.Stat(out); statErr == nil {
			logging.With(ctx, p.log).Warn().Str("diagnostic", tf.Diagnostic).Msg("qpdf finished with warnings")
			return nil
		}
	}
	return err
}

func (p *Processor) bundle(ctx context.Context, job *model.Job, name string, files []string) (*model.Artifact, error) {
	out := job.Workspace.File(name)
	if err := p.archiver.Archive(ctx, out, files); err != nil {
		return nil, err
	}
	return &model.Artifact{Path: out}, nil
}

func intParam(job *model.Job, key string, def int) (int, error) {
	raw := strings.TrimSpace(job.Param(key, ""))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("%s must be an integer", key)
	}
	return v, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFilesystem, err)
	}
	return nil
}
