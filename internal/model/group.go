package model

import "time"

// Group is a named, owned collection of recipes. (OwnerID, NameSlug) is
// unique.
//
// Recipes is the authoritative membership set. Deleting a group removes the
// set with it and never touches the member recipes.
type Group struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner"`
	Name        string    `json:"name"`
	NameSlug    string    `json:"nameSlug"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	Recipes     []string  `json:"recipes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
