package adapter

import "context"

// PDFEngine performs in-process page manipulation on PDF files.
type PDFEngine interface {
	PageCount(ctx context.Context, in string) (int, error)
	Merge(ctx context.Context, inputs []string, out string) error
	// ExtractPage writes the single 1-indexed page of in to out.
	ExtractPage(ctx context.Context, in string, page int, out string) error
	// Rotate adds angle (a multiple of 90) to every page's rotation.
	Rotate(ctx context.Context, in string, angle int, out string) error
	// FromImages writes one page per image, each page sized to its image.
	FromImages(ctx context.Context, images []string, out string) error
}

type FitMode string

const (
	FitCover   FitMode = "cover"
	FitContain FitMode = "contain"
	FitCrop    FitMode = "crop"
	FitPad     FitMode = "pad"
	FitInside  FitMode = "fit"
)

// ResizeSpec is a target box and the policy used to fit an image into it.
type ResizeSpec struct {
	Width  int
	Height int
	Mode   FitMode
}

// ImageResizer decodes, auto-orients, resizes and re-encodes as JPEG.
type ImageResizer interface {
	Resize(ctx context.Context, in, out string, spec ResizeSpec) error
}

// Archiver bundles files into a single compressed archive. Entries keep
// the order of files and are named by their base name.
type Archiver interface {
	Archive(ctx context.Context, out string, files []string) error
}
