package graph

import "errors"

// Sentinel errors for the graph core. Callers classify failures with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrNotFound marks a referenced entity, relation, community or
	// campaign that does not exist. Batch operations skip the sub-item
	// and count it instead of failing the batch.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed input, including a self-relation
	// without the explicit override. Rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrCrossCampaign marks an edge or pending relation whose endpoints
	// span campaigns. Never coerced silently.
	ErrCrossCampaign = errors.New("cross-campaign reference")

	// ErrUpstream marks a failure of an external collaborator (extraction
	// or summarization model). It never unwinds an already committed
	// approval or rejection.
	ErrUpstream = errors.New("upstream collaborator failed")
)
