// Package media talks to the external media host that stores recipe
// images. The API never proxies image bytes: clients upload straight to
// the host with a presigned URL, and the API only deletes objects by their
// public id when a recipe no longer references them.
package media

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const keyRoot = "recipes/"

// KeyPrefix is the folder holding every upload issued to ownerID.
func KeyPrefix(ownerID string) string {
	return keyRoot + ownerID + "/"
}

// Key returns the public id of object name uploaded by ownerID.
func Key(ownerID, name string) string {
	return KeyPrefix(ownerID) + name
}

// OwnedBy reports whether publicID is a key issued to ownerID: exactly
// "recipes/<ownerID>/<name>" with a non-empty name and no deeper path.
func OwnedBy(publicID, ownerID string) bool {
	if ownerID == "" || strings.Contains(ownerID, "/") {
		return false
	}
	name, ok := strings.CutPrefix(publicID, KeyPrefix(ownerID))
	return ok && name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// Destroyer deletes one stored object by its public id.
type Destroyer interface {
	Destroy(ctx context.Context, publicID string) error
}

// Upload is what a client needs to upload one image directly to the host.
type Upload struct {
	PublicID  string    `json:"publicId"`
	UploadURL string    `json:"uploadUrl"` // presigned PUT
	URL       string    `json:"url"`       // where the object is served once uploaded
	ExpiresAt time.Time `json:"expiresAt"`
}

// NopDestroyer is used when no media host is configured. It only logs.
type NopDestroyer struct {
	Logger *slog.Logger
}

// Destroy implements Destroyer.
func (n NopDestroyer) Destroy(_ context.Context, publicID string) error {
	if n.Logger != nil {
		n.Logger.Debug("media host not configured, skipping delete", slog.String("publicId", publicID))
	}
	return nil
}
