package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnedBy(t *testing.T) {
	tests := []struct {
		name     string
		publicID string
		ownerID  string
		want     bool
	}{
		{"issued key", Key("user-1", "3f2a.jpg"), "user-1", true},
		{"other owner", Key("user-2", "3f2a.jpg"), "user-1", false},
		{"owner id prefix of another", "recipes/user-10/x", "user-1", false},
		{"outside the upload folder", "config/secret.json", "user-1", false},
		{"bare prefix", KeyPrefix("user-1"), "user-1", false},
		{"nested path", "recipes/user-1/a/b", "user-1", false},
		{"dot segment", "recipes/user-1/..", "user-1", false},
		{"empty owner", "recipes//x", "", false},
		{"empty id", "", "user-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OwnedBy(tt.publicID, tt.ownerID))
		})
	}
}
