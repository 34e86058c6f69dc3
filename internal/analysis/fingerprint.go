package analysis

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// ResultTTL bounds how long a completed synthesis answers duplicate
// submissions from the cache.
const ResultTTL = time.Hour

const cacheKeyPrefix = "diagnostic_"

// Fingerprint returns the content digest of the raw symptom text. The text is
// deliberately not normalized: submissions differing only in whitespace or
// case are distinct requests.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CacheKey maps a fingerprint to its cache entry, e.g.
// diagnostic_9e107d9d372bb6826bd81d3542a419d6.
func CacheKey(fingerprint string) string {
	return cacheKeyPrefix + fingerprint
}
