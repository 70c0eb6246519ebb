// Package util provides small helpers shared across ShotScope components.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex characters.
// Not cryptographic; used for request and flow identifiers in logs and storage.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns a random lowercase hex string of the given length.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(hexChars[rand.Intn(16)])
	}
	return b.String()
}

// GenerateFlowID returns a unique flow identifier with a "flow_" prefix.
func GenerateFlowID() string {
	return GenerateRandomID("flow_", 32)
}
