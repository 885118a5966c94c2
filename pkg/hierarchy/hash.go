package hierarchy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// genesisHash anchors deployment nodes, which have no parent.
const genesisHash = "genesis"

// hashNode computes sha256 over the RFC 8785 canonical form of params
// concatenated with the parent hash. Canonicalization makes the hash
// independent of Go map iteration order and JSON whitespace.
func hashNode(params Params, parentHash string) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize params: %w", err)
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(parentHash))
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
