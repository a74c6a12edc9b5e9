package model

// NewCollectionSuggestion is the model's proposal for a collection that
// does not exist in the hierarchy yet.
type NewCollectionSuggestion struct {
	SuggestedName    string `json:"suggested_name"`
	ParentCollection string `json:"parent_collection"`
	Reason           string `json:"reason"`
}

// ClassificationResult is the structured outcome of classifying a single
// product: zero to two assignments and an optional new-collection
// suggestion.
type ClassificationResult struct {
	Suggestion *NewCollectionSuggestion
	Assigned   []AssignedCategory
}

// Confidences returns the confidence scores of the assigned categories,
// in assignment order.
func (r ClassificationResult) Confidences() []float64 {
	if len(r.Assigned) == 0 {
		return nil
	}
	out := make([]float64, len(r.Assigned))
	for i, a := range r.Assigned {
		out[i] = a.Confidence
	}
	return out
}
