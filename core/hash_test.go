package core

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"
)

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func TestComputeBidHash(t *testing.T) {
	bidID := "bid_123"
	nonce := "test_nonce_456"

	hash := ComputeBidHash(bidID, dec("66.00"), nonce)

	check.Equal(t, 64, len(hash))
	check.True(t, isHex(hash))

	// Same inputs should produce same hash (deterministic)
	check.Equal(t, hash, ComputeBidHash(bidID, dec("66.00"), nonce))

	// Different inputs should produce different hashes
	check.NotEqual(t, hash, ComputeBidHash(bidID, dec("67.00"), nonce))
	check.NotEqual(t, hash, ComputeBidHash("bid_124", dec("66.00"), nonce))
	check.NotEqual(t, hash, ComputeBidHash(bidID, dec("66.00"), "other"))

	// Verify exact hash calculation
	expected := fmt.Sprintf("%x", sha256.Sum256([]byte("bid_123|66.00|test_nonce_456")))
	check.Equal(t, expected, hash)
}

func TestComputeBidHash_AmountFormatting(t *testing.T) {
	// Equal amounts with different representations hash the same
	check.Equal(t, ComputeBidHash("bid-1", dec("66"), "n"), ComputeBidHash("bid-1", dec("66.000"), "n"))
	check.NotEqual(t, ComputeBidHash("bid-1", dec("66.01"), "n"), ComputeBidHash("bid-1", dec("66.02"), "n"))
}

func TestComputeLedgerDigest(t *testing.T) {
	hashes := []string{"aa", "bb"}

	digest := ComputeLedgerDigest(hashes, "nonce")
	check.Equal(t, 64, len(digest))
	check.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte("nonce|aa|bb"))), digest)

	// Order matters
	check.NotEqual(t, digest, ComputeLedgerDigest([]string{"bb", "aa"}, "nonce"))
}
