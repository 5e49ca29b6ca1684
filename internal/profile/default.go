package profile

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// The default document ships inside the binary: the public page must
// render something even before an admin has ever saved, and Reset
// restores exactly this state.
//
//go:embed default.json
var defaultDocumentJSON []byte

// DefaultDocument returns a fresh copy of the compiled-in default
// profile document.
func DefaultDocument() Document {
	var doc Document
	if err := json.Unmarshal(defaultDocumentJSON, &doc); err != nil {
		panic(fmt.Sprintf("profile: embedded default document is invalid: %v", err))
	}
	return doc
}

// DecodeDocument parses raw JSON over a copy of the default document, so
// fields absent from the payload keep their defaults. This is the only
// schema-evolution mechanism: optional-field defaulting at read time.
func DecodeDocument(data []byte) (Document, error) {
	doc := DefaultDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("profile: decode document: %w", err)
	}
	return doc, nil
}

// EncodeDocument renders the document the way it is stored on disk.
func EncodeDocument(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("profile: encode document: %w", err)
	}
	return data, nil
}
