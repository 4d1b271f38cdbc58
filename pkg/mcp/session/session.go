// Package session generates opaque session identifiers for transports that
// track client state across requests (spec.md 4.I).
package session

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Generate returns an opaque session id built from a microsecond-resolution
// timestamp and a uniform 32-bit random value, formatted
// "<hex-timestamp>-<rand>", grounded on the original_source
// SessionBuilder::GenerateUniqueSessionID. Unique within the process
// lifetime: the timestamp component only repeats if two calls land in the
// same microsecond, in which case the random suffix still disambiguates
// them with overwhelming probability.
func Generate() string {
	ts := time.Now().UnixMicro()
	r := rand.Uint32()
	return fmt.Sprintf("%x-%x", ts, r)
}
