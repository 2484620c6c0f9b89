package pdf

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"neunovapdf-backend/internal/domain/ports/adapter"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var _ adapter.PDFEngine = (*Engine)(nil)

var disableConfigDir sync.Once

// Engine implements page-level PDF operations in process with pdfcpu.
// pdfcpu does not take a context, so cancellation is checked between
// page-sized steps.
type Engine struct{}

func NewEngine() *Engine {
	// never read or create ~/.config/pdfcpu on a server
	disableConfigDir.Do(api.DisableConfigDir)
	return &Engine{}
}

func (e *Engine) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (e *Engine) PageCount(ctx context.Context, in string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCountFile(in)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}

// Merge concatenates every page of every input, in input order.
func (e *Engine) Merge(ctx context.Context, inputs []string, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.MergeCreateFile(inputs, out, false, e.conf()); err != nil {
		return fmt.Errorf("merge pdf: %w", err)
	}
	return nil
}

func (e *Engine) ExtractPage(ctx context.Context, in string, page int, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.TrimFile(in, out, []string{strconv.Itoa(page)}, e.conf()); err != nil {
		return fmt.Errorf("extract page %d: %w", page, err)
	}
	return nil
}

func (e *Engine) Rotate(ctx context.Context, in string, angle int, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if angle%90 != 0 {
		return fmt.Errorf("rotate pdf: angle %d is not a multiple of 90", angle)
	}
	if err := api.RotateFile(in, out, angle, nil, e.conf()); err != nil {
		return fmt.Errorf("rotate pdf: %w", err)
	}
	return nil
}

// FromImages embeds each image as a full page sized to the image.
func (e *Engine) FromImages(ctx context.Context, images []string, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	if err := api.ImportImagesFile(images, out, imp, e.conf()); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	return nil
}
