package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/internal/persistence"
	"github.com/dataproduct/journeys/internal/schema"
	"github.com/dataproduct/journeys/pkg/api"
	"github.com/dataproduct/journeys/pkg/journey"
)

func openStore(ctx context.Context) (persistence.DefinitionStore, func() error, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := persistence.ParseBackend(cfg.StoreBackend)
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := persistence.Open(ctx, b, cfg.StoreDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", b, err)
	}
	return store, closeFn, nil
}

// storePut saves a built-in journey when arg names one, otherwise it reads
// arg as a document file.
func storePut(ctx context.Context, w io.Writer, arg string) error {
	doc, err := resolveDocument(arg)
	if err != nil {
		return err
	}
	store, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := store.SaveDefinition(doc); err != nil {
		return fmt.Errorf("failed to save %s: %w", doc.Name, err)
	}
	logger.Info("definition_saved", "journey", doc.Name, "version", doc.Version, "backend", cfg.StoreBackend)
	fmt.Fprintf(w, "saved %s@%s\n", doc.Name, versionOf(doc))
	return nil
}

func resolveDocument(arg string) (api.Document, error) {
	for _, name := range journey.Names() {
		if name != arg {
			continue
		}
		def, err := journey.Build(name, cfg.JourneyOptions())
		if err != nil {
			return api.Document{}, err
		}
		return journeys.Export(def), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return api.Document{}, fmt.Errorf("%q is neither a built-in journey nor a readable file: %w", arg, err)
	}
	v, err := schema.NewValidator()
	if err != nil {
		return api.Document{}, err
	}
	doc, err := v.Decode(data)
	if err != nil {
		return api.Document{}, fmt.Errorf("%s: %w", arg, err)
	}
	return doc, nil
}

func storeGet(ctx context.Context, w io.Writer, name string) error {
	store, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	var doc api.Document
	if storeVersion == "" {
		doc, err = store.GetLatestDefinition(name)
	} else {
		doc, err = store.GetDefinition(name, storeVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", name, err)
	}
	return writeFormatted(w, doc, outputFormat)
}

func storeList(ctx context.Context, w io.Writer, args []string) error {
	store, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	var items []string
	if len(args) == 0 {
		items, err = store.ListDefinitionNames()
	} else {
		items, err = store.ListDefinitionVersions(args[0])
	}
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Fprintln(w, item)
	}
	return nil
}

func versionOf(doc api.Document) string {
	if doc.Version == "" {
		return api.DefaultVersion
	}
	return doc.Version
}
