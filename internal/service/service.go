// Package service holds the business rules of recipebox.
//
// Handlers call services with an already authenticated caller id and
// already decoded input; services enforce ownership, slug uniqueness and
// pagination, and return *apperror.AppError values the HTTP layer maps to
// status codes. Services never see HTTP types and never touch SQL: they
// talk to the repository interfaces, so tests swap in in-memory fakes.
package service

import (
	"math"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/media"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	// MaxPage is the largest page whose offset fits in an int at any limit.
	MaxPage = math.MaxInt / MaxListLimit
)

// MediaCleaner deletes external media in the background. Schedule must not
// block; implementations swallow and log failures.
type MediaCleaner interface {
	Schedule(publicIDs ...string)
}

// NopCleaner drops every id. Used when no media host is configured.
type NopCleaner struct{}

func (NopCleaner) Schedule(...string) {}

// ListQuery is the paging and filtering input shared by recipe and group
// listings. A zero Page or Limit means "use the default".
type ListQuery struct {
	Scope model.Scope
	Query string
	Page  int
	Limit int
}

// window clamps page and limit and converts them into LIMIT/OFFSET.
func (q ListQuery) window() (page, limit int, opts repository.ListOptions) {
	page = q.Page
	if page < 1 {
		page = 1
	}
	limit = q.Limit
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit < 1:
		limit = 1
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	offset := math.MaxInt // past any table: the page is empty
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}
	return page, limit, repository.ListOptions{Limit: limit, Offset: offset}
}

// checkMediaIDs rejects public ids that were not issued to ownerID by the
// upload signer. Anything else could name another user's image.
func checkMediaIDs(ownerID string, ids []string) error {
	for _, id := range ids {
		if !media.OwnedBy(id, ownerID) {
			return apperror.ValidationFailed("imagePublicIds",
				"imagePublicIds must come from an upload signed for you")
		}
	}
	return nil
}

// ownedMedia keeps the ids that live under ownerID's upload folder. It
// guards deletion against rows stored before checkMediaIDs existed.
func ownedMedia(ownerID string, ids []string) []string {
	var kept []string
	for _, id := range ids {
		if media.OwnedBy(id, ownerID) {
			kept = append(kept, id)
		}
	}
	return kept
}

func newPage[T any](page, limit, total int, items []T) *model.Page[T] {
	if items == nil {
		items = []T{}
	}
	return &model.Page[T]{Page: page, Limit: limit, Total: total, Items: items}
}
