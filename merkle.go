/*
merkle.go: eligibility verification against the Merkle commitment.

The commitment (a Merkle root over SHA-256 leaf hashes of voter addresses)
is built entirely off-chain; this contract only ever folds one leaf with the
ordered sibling path a voter presents and compares the result to the stored
root. Pair hashing is normalized (the byte-wise smaller operand always goes
first), so the verifier never needs left/right direction bits and the proof
is just the sibling hashes. O(log n) in the committed set size; reveals
nothing about the rest of the set.
*/
package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// leafHash hashes an address string into its Merkle leaf.
// Addresses are normalized to lowercase before hashing so the on-chain
// verifier and the off-chain commitment tool agree byte for byte.
func leafHash(address string) []byte {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(address))))
	return h[:]
}

// hashPair folds two nodes with the smaller operand first.
func hashPair(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	return h.Sum(nil)
}

// parseProof decodes a JSON array of 64-char hex sibling hashes.
func parseProof(proofJSON string) ([][]byte, error) {
	var hexes []string
	if err := json.Unmarshal([]byte(proofJSON), &hexes); err != nil {
		return nil, fmt.Errorf("proof json: %w", err)
	}
	out := make([][]byte, 0, len(hexes))
	for i, s := range hexes {
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
		if err != nil || len(b) != sha256.Size {
			return nil, fmt.Errorf("proof element %d is not a 32-byte hex hash", i)
		}
		out = append(out, b)
	}
	return out, nil
}

// verifyMembership folds the caller's leaf through the sibling path and
// compares against the committed root. A malformed proof is an error; a
// well-formed proof that does not reach the root is simply false.
func verifyMembership(address, rootHex, proofJSON string) (bool, error) {
	root, err := hex.DecodeString(rootHex)
	if err != nil || len(root) != sha256.Size {
		return false, fmt.Errorf("stored eligibility root corrupt")
	}
	siblings, err := parseProof(proofJSON)
	if err != nil {
		return false, err
	}
	node := leafHash(address)
	for _, sib := range siblings {
		node = hashPair(node, sib)
	}
	return bytes.Equal(node, root), nil
}
