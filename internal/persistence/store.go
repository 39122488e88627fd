package persistence

import (
	"errors"

	"github.com/dataproduct/journeys/pkg/api"
)

// ErrDefinitionNotFound is returned when a journey definition is not found.
var ErrDefinitionNotFound = errors.New("definition not found")

// DefinitionStore handles storage of exported journey definitions.
//
// Saving a name+version that already exists replaces the stored document.
// The latest version of a journey is the one saved most recently.
type DefinitionStore interface {
	SaveDefinition(doc api.Document) error
	// GetDefinition returns the document for a name+version.
	GetDefinition(name, version string) (api.Document, error)
	// GetLatestDefinition returns the most recently saved version of name.
	GetLatestDefinition(name string) (api.Document, error)
	// ListDefinitionVersions returns the versions of name in save order.
	ListDefinitionVersions(name string) ([]string, error)
	// ListDefinitionNames returns every stored journey name, sorted.
	ListDefinitionNames() ([]string, error)
}
