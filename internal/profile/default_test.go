package profile

import (
	"strings"
	"testing"
)

func TestDefaultDocumentIsValid(t *testing.T) {
	doc := DefaultDocument()
	if doc.Name == "" {
		t.Fatalf("default document must carry a name")
	}
	if doc.Stats.Views != 0 || doc.Stats.Likes != 0 {
		t.Fatalf("default stats must start at zero, got %+v", doc.Stats)
	}
	if err := ValidateDocument(doc); err != nil {
		t.Fatalf("default document must validate: %v", err)
	}
}

func TestDefaultDocumentReturnsIndependentCopies(t *testing.T) {
	first := DefaultDocument()
	first.Name = "mutated"
	if DefaultDocument().Name == "mutated" {
		t.Fatalf("mutating one copy must not leak into the next")
	}
}

func TestDecodeDocumentFillsMissingFieldsFromDefaults(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"name":"partial"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if doc.Name != "partial" {
		t.Fatalf("explicit fields must win, got %q", doc.Name)
	}
	defaults := DefaultDocument()
	if len(doc.Socials) != len(defaults.Socials) {
		t.Fatalf("absent fields must fall back to defaults")
	}
}

func TestDecodeDocumentRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeDocument([]byte(`{"name":`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestEncodeDocumentUsesTwoSpaceIndent(t *testing.T) {
	encoded, err := EncodeDocument(DefaultDocument())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(string(encoded), "\n  \"") {
		t.Fatalf("expected two-space indented output")
	}
}
