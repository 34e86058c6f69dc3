package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	assert.Equal(t, Fingerprint("fièvre"), Fingerprint("fièvre"))
	assert.NotEqual(t, Fingerprint("fièvre"), Fingerprint("Fièvre"))
	assert.NotEqual(t, Fingerprint("fièvre"), Fingerprint("fièvre "))
}

func TestFingerprintKnownDigest(t *testing.T) {
	// md5 of the canonical quick brown fox sentence.
	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6", Fingerprint("The quick brown fox jumps over the lazy dog"))
}

func TestCacheKeyPrefix(t *testing.T) {
	assert.Equal(t, "diagnostic_9e107d9d372bb6826bd81d3542a419d6", CacheKey("9e107d9d372bb6826bd81d3542a419d6"))
}
