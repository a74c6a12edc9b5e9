package llm

import (
	"context"
)

// Client defines the interface for LLM providers.
type Client interface {
	Classify(ctx context.Context, prompt string) (ClassifyResponse, error)
}

// AssignedCollection is one existing collection the model assigned the
// product to.
type AssignedCollection struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
}

// SuggestionPayload is the model's optional new-collection proposal.
type SuggestionPayload struct {
	SuggestedName    string `json:"suggested_name"`
	ParentCollection string `json:"parent_collection"`
	Reason           string `json:"reason"`
}

// ClassifyResponse contains the LLM's structured classification result.
type ClassifyResponse struct {
	NewCollectionSuggestion *SuggestionPayload   `json:"new_collection_suggestion,omitempty"`
	AssignedCollections     []AssignedCollection `json:"assigned_collections"`
}
