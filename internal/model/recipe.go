package model

import "time"

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Recipe is owned by exactly one user. (OwnerID, TitleSlug) is unique.
//
// ImagePublicIDs are media-host handles paired with Images; they are what
// gets deleted from the media host when the recipe goes away.
//
// Groups lists the groups the recipe currently belongs to. It is filled on
// single-recipe reads from the group membership table and is informational
// only: membership is owned by the group.
type Recipe struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner"`
	Title          string       `json:"title"`
	TitleSlug      string       `json:"titleSlug"`
	Description    string       `json:"description"`
	Ingredients    []Ingredient `json:"ingredients"`
	Steps          []string     `json:"steps"`
	Servings       int          `json:"servings"`
	CookTime       int          `json:"cookTime"` // minutes
	Images         []string     `json:"images"`
	ImagePublicIDs []string     `json:"imagePublicIds"`
	Tags           []string     `json:"tags"`
	Groups         []string     `json:"groups"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}
