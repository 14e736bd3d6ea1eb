package slotdriver

import (
	"fmt"

	"github.com/aztecprotocol/slashsim/crypto"
)

// GenesisParentHash is the literal parent hash of the first block ever
// proposed in a run.
const GenesisParentHash = "genesis"

// hashTruncateBytes is the truncation length used for both block hashes
// and attestation signatures: deterministic identifiers, not
// cryptographic commitments.
const hashTruncateBytes = 16

// Block is one proposed block. Forking is not modelled: parent_hash
// always chains to the most recently proposed block across the whole
// run, not per-branch.
type Block struct {
	Slot       int
	Proposer   string
	ParentHash string
	TxCount    int
	Timestamp  float64
	Hash       string
}

// newBlock builds a Block and computes its deterministic hash from its
// own fields.
func newBlock(slot int, proposer, parentHash string, txCount int, timestamp float64) Block {
	b := Block{Slot: slot, Proposer: proposer, ParentHash: parentHash, TxCount: txCount, Timestamp: timestamp}
	payload := fmt.Sprintf("%d|%s|%s|%d|%f", b.Slot, b.Proposer, b.ParentHash, b.TxCount, b.Timestamp)
	b.Hash = crypto.TruncatedHash([]byte(payload), hashTruncateBytes)
	return b
}

// Attestation is a committee member's vote for a block. Signatures are
// deterministic identifiers, not cryptographic signatures.
type Attestation struct {
	Validator          string
	Slot               int
	BlockHash          string
	PropagationDelayMs float64
	Signature          string
}

func newAttestation(validator string, slot int, blockHash string, propagationDelayMs float64) Attestation {
	a := Attestation{Validator: validator, Slot: slot, BlockHash: blockHash, PropagationDelayMs: propagationDelayMs}
	payload := fmt.Sprintf("%s|%d|%s", a.Validator, a.Slot, a.BlockHash)
	a.Signature = crypto.TruncatedHash([]byte(payload), hashTruncateBytes)
	return a
}
