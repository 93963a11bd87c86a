package pdftext

import "testing"

func TestExtractRejectsGarbage(t *testing.T) {
	if _, err := Extract([]byte("not a pdf at all")); err == nil {
		t.Error("Extract accepted non-PDF bytes")
	}
}

func TestExtractRejectsEmptyInput(t *testing.T) {
	if _, err := Extract(nil); err == nil {
		t.Error("Extract accepted empty input")
	}
}

func TestExtractFileMissing(t *testing.T) {
	if _, err := ExtractFile("/nonexistent/file.pdf"); err == nil {
		t.Error("ExtractFile accepted a missing path")
	}
}
