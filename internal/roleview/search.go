package roleview

import (
	"strings"

	"rentalcore/internal/hub"
)

// SearchListings keeps the views whose title, address or description
// contains text, ignoring case. Empty text keeps everything. The input is
// not modified.
func SearchListings(views []hub.PropertyView, text string) []hub.PropertyView {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]hub.PropertyView, 0, len(views))
	for _, v := range views {
		if needle == "" ||
			strings.Contains(strings.ToLower(v.Property.Title), needle) ||
			strings.Contains(strings.ToLower(v.Property.Address), needle) ||
			strings.Contains(strings.ToLower(v.Property.Description), needle) {
			out = append(out, v)
		}
	}
	return out
}

// MarkOwnership sets IsOwner on the views owned by userID.
func MarkOwnership(views []hub.PropertyView, userID string) []hub.PropertyView {
	for i := range views {
		views[i].IsOwner = userID != "" && views[i].Property.LandlordID == userID
	}
	return views
}
