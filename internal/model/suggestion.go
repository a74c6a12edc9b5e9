package model

import "time"

// SuggestionStatus is the review state of a proposed collection.
type SuggestionStatus string

// Suggestion review states. Terminal states are only ever set by an
// explicit review action.
const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

// SuggestionRecord accumulates evidence for a collection that does not
// exist yet, keyed by the suggested name.
type SuggestionRecord struct {
	CreatedAt        time.Time
	SuggestedName    string
	ParentCollection string
	Status           SuggestionStatus
	ProductIDs       []string
	ID               int64
	ProductCount     int
}

// AddProduct appends a contributing product id if it is not already
// present and keeps ProductCount equal to the set size. Returns true if
// the id was added.
func (s *SuggestionRecord) AddProduct(productID string) bool {
	if productID == "" {
		s.ProductCount = len(s.ProductIDs)
		return false
	}
	for _, id := range s.ProductIDs {
		if id == productID {
			s.ProductCount = len(s.ProductIDs)
			return false
		}
	}
	s.ProductIDs = append(s.ProductIDs, productID)
	s.ProductCount = len(s.ProductIDs)
	return true
}
