package core

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ComputeBidHash computes the salted hash of a ledger bid.
// This is used by both the receipt signer (to generate hashes) and bidders
// (to verify their bid was part of the settled ledger).
//
// Formula: SHA256(bid_id + "|" + amount + "|" + nonce)
//
// The amount is formatted to exactly 2 decimal places so that equal amounts
// hash identically regardless of their decimal representation.
func ComputeBidHash(bidID string, amount decimal.Decimal, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s", bidID, amount.StringFixed(monetaryPrecision), nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeLedgerDigest chains bid hashes in commit order into one digest.
//
// Formula: SHA256(nonce + "|" + hash_1 + "|" + hash_2 + ...)
func ComputeLedgerDigest(bidHashes []string, nonce string) string {
	data := nonce + "|" + strings.Join(bidHashes, "|")
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
