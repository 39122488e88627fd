package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dataproduct/journeys/pkg/api"
)

var errMissingName = errors.New("document has no name")

// EncodeDocument serializes a definition document for storage.
func EncodeDocument(doc api.Document) ([]byte, error) {
	if doc.Name == "" {
		return nil, errMissingName
	}
	return json.Marshal(doc)
}

// DecodeDocument is the inverse of EncodeDocument.
func DecodeDocument(data []byte) (api.Document, error) {
	var doc api.Document
	if len(data) == 0 {
		return doc, errors.New("empty document")
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func versionOrDefault(v string) string {
	if v == "" {
		return api.DefaultVersion
	}
	return v
}
