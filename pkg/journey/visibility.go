package journey

import "github.com/dataproduct/journeys"

// Visibility collaborators.
const (
	TargetVisibilityFetchInputs         = "visibility.fetchInputs"
	TargetVisibilityAssignTags          = "visibility.assignTags"
	TargetVisibilityUpdateCatalogRecord = "visibility.updateCatalogRecord"
	TargetVisibilityEmitCompletionEvent = "visibility.emitCompletionEvent"
)

// Visibility fields.
const (
	FieldVisibilityTags = "visibilityTags"
	FieldCatalogRecord  = "catalogRecord"
)

// NewVisibility returns the builder of the visibility journey, a straight
// line of tasks publishing a data product's visibility.
func NewVisibility(opts Options) *journeys.JourneyBuilder {
	opts = opts.withDefaults()
	return opts.builder(Visibility).
		Stage(taskStage(opts.task("Fetch Inputs", TargetVisibilityFetchInputs).
			Reads(FieldDataProductID).
			Result(FieldDataProduct))).
		Stage(taskStage(opts.task("Assign Visibility Tags", TargetVisibilityAssignTags).
			Reads(FieldDataProduct).
			Result(FieldVisibilityTags))).
		Stage(taskStage(opts.task("Update Catalog Record", TargetVisibilityUpdateCatalogRecord).
			Reads(FieldDataProduct, FieldVisibilityTags).
			Result(FieldCatalogRecord))).
		Stage(taskStage(opts.task("Emit Completion Event", TargetVisibilityEmitCompletionEvent).
			Reads(FieldDataProduct).
			Result(FieldCompletionEvent)))
}
