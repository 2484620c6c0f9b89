//go:build !integration

package model

import "testing"

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.docx":            "report.docx",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\slides.pptx`: "slides.pptx",
		"":                       "input",
		"..":                     "input",
		"/":                      "input",
		"  spaced.pdf ":          "spaced.pdf",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOperations_Descriptors(t *testing.T) {
	t.Run("every op is registered under its own name", func(t *testing.T) {
		for name, op := range Operations {
			if op.Name != name {
				t.Errorf("descriptor %q registered as %q", op.Name, name)
			}
			if op.MinInputs < 1 {
				t.Errorf("%s: MinInputs must be at least 1", name)
			}
			if op.MissingInput == "" {
				t.Errorf("%s: missing validation message", name)
			}
		}
	})

	mustLookup := func(name OpName) Operation {
		op, ok := Lookup(name)
		if !ok {
			t.Fatalf("%s not registered", name)
		}
		return op
	}

	t.Run("merge needs two inputs", func(t *testing.T) {
		op := mustLookup(OpMerge)
		if op.MinInputs != 2 || op.MissingInput != "upload at least 2 pdf files" {
			t.Errorf("unexpected merge descriptor: %+v", op)
		}
	})

	t.Run("families", func(t *testing.T) {
		if mustLookup(OpConvert).Family != FamilyDocument {
			t.Error("convert must be a document op")
		}
		if mustLookup(OpFromImages).Family != FamilyImage || mustLookup(OpResize).Family != FamilyImage {
			t.Error("image ops must share the image family")
		}
		if mustLookup(OpRotate).Family != FamilyPDF {
			t.Error("rotate must be a pdf op")
		}
	})

	t.Run("unknown op", func(t *testing.T) {
		if _, ok := Lookup("nope"); ok {
			t.Fatal("unknown operation must not resolve")
		}
	})
}

func TestJobParam(t *testing.T) {
	j := &Job{Params: map[string]string{"target": "docx", "password": ""}}
	if got := j.Param("target", "pdf"); got != "docx" {
		t.Errorf("want docx, got %s", got)
	}
	if got := j.Param("password", "x"); got != "" {
		t.Errorf("explicit empty value must win over default, got %q", got)
	}
	if got := j.Param("mode", "fit"); got != "fit" {
		t.Errorf("want default, got %s", got)
	}
}
