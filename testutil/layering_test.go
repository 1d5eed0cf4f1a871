package testutil

import (
	"path/filepath"
	"testing"
)

// The layering of the repository itself, checked from source.
func TestRepositoryLayering(t *testing.T) {
	root := filepath.Join("..")
	rules := []struct {
		dir       string
		forbidden func(string) bool
		reason    string
	}{
		{"pkg", AnyOf(Internal(), ThirdParty), "public packages depend on nothing internal or external"},
		{"internal/infra", Internal("core", "hub", "roleview", "identity", "geocode", "adapters"), "storage drivers sit below the service"},
		{"internal/core", Internal("hub", "roleview", "identity", "geocode", "blob", "adapters"), "the service only knows collaborators through interfaces"},
		{"internal/hub", Internal("roleview", "identity", "adapters", "infra"), "the hub reads through the persistent store interface"},
		{"internal/geocode", Internal(), "the geocoder is a leaf collaborator"},
		{"internal/identity", Internal(), "identity is a leaf collaborator"},
		{"internal/roleview", Internal("adapters", "infra"), "role views are transport agnostic"},
	}
	for _, r := range rules {
		t.Run(r.dir, func(t *testing.T) {
			AssertNoImportsUnder(t, filepath.Join(root, filepath.FromSlash(r.dir)), r.forbidden, r.reason)
		})
	}
}
