package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/internal/schema"
	"github.com/dataproduct/journeys/pkg/journey"
)

func exportJourney(w io.Writer, name string) error {
	def, err := journey.Build(name, cfg.JourneyOptions())
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", name, err)
	}
	return writeFormatted(w, journeys.Export(def), outputFormat)
}

func validateFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := schema.NewValidator()
	if err != nil {
		return err
	}
	doc, err := v.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("document_valid", "path", path, "journey", doc.Name, "nodes", len(doc.Nodes))
	fmt.Fprintf(w, "✓ %s: journey %q is valid (%d nodes)\n", path, doc.Name, len(doc.Nodes))
	return nil
}
