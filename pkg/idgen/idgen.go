// Package idgen mints the off-chain record IDs (policy ID, allocation ID,
// premium distribution ID) used before an on-chain counterpart exists.
// Transaction convexIds are not minted here.
package idgen

import "github.com/google/uuid"

// New returns a fresh opaque off-chain record identifier.
func New() string {
	return uuid.NewString()
}
