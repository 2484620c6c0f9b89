package model

// Family groups operations that share a quota ceiling.
type Family string

const (
	FamilyDocument Family = "document"
	FamilyPDF      Family = "pdf"
	FamilyImage    Family = "image"
)

// OpName identifies one pipeline.
type OpName string

const (
	OpConvert    OpName = "convert"
	OpResize     OpName = "resize"
	OpMerge      OpName = "merge"
	OpSplit      OpName = "split"
	OpRotate     OpName = "rotate"
	OpCompress   OpName = "compress"
	OpToJPG      OpName = "to-jpg"
	OpFromImages OpName = "from-jpg"
	OpProtect    OpName = "protect"
	OpUnlock     OpName = "unlock"
)

// Operation is the static descriptor of a pipeline. Descriptors are
// defined once in Operations and never mutated.
type Operation struct {
	Name   OpName
	Family Family
	// Tool is the config key of the external executable, empty for
	// in-process transforms.
	Tool string

	MinInputs    int
	MaxInputs    int // 0 means unbounded
	MissingInput string

	// DownloadName is the suggested attachment filename. Empty means the
	// produced file keeps its own name.
	DownloadName string
}

const (
	ToolSoffice     = "soffice"
	ToolGhostscript = "ghostscript"
	ToolPdftoppm    = "pdftoppm"
	ToolQpdf        = "qpdf"
)

var Operations = map[OpName]Operation{
	OpConvert:    {Name: OpConvert, Family: FamilyDocument, Tool: ToolSoffice, MinInputs: 1, MaxInputs: 1, MissingInput: "file required"},
	OpResize:     {Name: OpResize, Family: FamilyImage, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "resized.jpg"},
	OpMerge:      {Name: OpMerge, Family: FamilyPDF, MinInputs: 2, MissingInput: "upload at least 2 pdf files", DownloadName: "merged.pdf"},
	OpSplit:      {Name: OpSplit, Family: FamilyPDF, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "pages.zip"},
	OpRotate:     {Name: OpRotate, Family: FamilyPDF, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "rotated.pdf"},
	OpCompress:   {Name: OpCompress, Family: FamilyPDF, Tool: ToolGhostscript, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "compressed.pdf"},
	OpToJPG:      {Name: OpToJPG, Family: FamilyPDF, Tool: ToolPdftoppm, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "images.zip"},
	OpFromImages: {Name: OpFromImages, Family: FamilyImage, MinInputs: 1, MissingInput: "files required", DownloadName: "from-images.pdf"},
	OpProtect:    {Name: OpProtect, Family: FamilyPDF, Tool: ToolQpdf, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "protected.pdf"},
	OpUnlock:     {Name: OpUnlock, Family: FamilyPDF, Tool: ToolQpdf, MinInputs: 1, MaxInputs: 1, MissingInput: "file required", DownloadName: "unlocked.pdf"},
}

// Lookup returns the descriptor for name and whether it is known.
func Lookup(name OpName) (Operation, bool) {
	op, ok := Operations[name]
	return op, ok
}
