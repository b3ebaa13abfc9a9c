package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TPSLHash digests (symbol, side, rounded tp, rounded sl) so duplicate
// protective-order attach attempts can be suppressed (spec.md §3 GLOSSARY).
// sha256 is stdlib: no pack dependency offers a hashing primitive and this
// is not on a latency-sensitive path, so the standard library is the right
// tool (DESIGN.md has the formal justification).
func TPSLHash(symbol string, side Side, roundedTP, roundedSL float64) string {
	raw := fmt.Sprintf("%s|%s|%.8f|%.8f", symbol, side, roundedTP, roundedSL)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
