package model

// Scope selects whose recipes a listing covers.
type Scope string

const (
	ScopePersonal Scope = "personal" // caller-owned only
	ScopeGeneral  Scope = "general"  // every owner
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopePersonal || s == ScopeGeneral
}

// Page is one slice of a sorted listing. Page is 1-indexed and Total counts
// every match, not just Items.
type Page[T any] struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Items []T `json:"items"`
}
