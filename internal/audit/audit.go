// Package audit implements the tamper-evident checksum chain over audit
// entries. Entry persistence lives in the storage layer; this package owns
// the canonical checksum computation and the chain verifier.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/internal/types"
)

// GenesisChecksum is the previous_checksum value of the first chain entry.
const GenesisChecksum = ""

// ComputeChecksum derives the chain checksum for an entry. The hashed fields
// and their order are fixed: sequence, action, actor, target kind, target id,
// occurred-at (UTC RFC3339), canonical metadata JSON, previous checksum.
// Changing any of them invalidates every later entry.
func ComputeChecksum(e *types.AuditEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d", e.Sequence)
	h.Write([]byte{0})
	h.Write([]byte(e.Action))
	h.Write([]byte{0})
	h.Write([]byte(e.Actor))
	h.Write([]byte{0})
	h.Write([]byte(e.TargetKind))
	h.Write([]byte{0})
	h.Write([]byte(e.TargetID))
	h.Write([]byte{0})
	h.Write([]byte(e.OccurredAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(CanonicalMetadata(e.Metadata)))
	h.Write([]byte{0})
	h.Write([]byte(e.PreviousChecksum))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalMetadata renders metadata as JSON. encoding/json emits map keys in
// sorted order, so the same map always hashes identically.
func CanonicalMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Seal assigns sequence, previous checksum and checksum to an entry about to
// be appended after prev. prev is nil for the first entry of the chain.
func Seal(e *types.AuditEntry, prev *types.AuditEntry) {
	if prev == nil {
		e.Sequence = 1
		e.PreviousChecksum = GenesisChecksum
	} else {
		e.Sequence = prev.Sequence + 1
		e.PreviousChecksum = prev.Checksum
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}
	e.Checksum = ComputeChecksum(e)
}

// Divergence describes the first point where the audit chain fails to verify.
type Divergence struct {
	Sequence int64
	Reason   string
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("audit chain divergence at sequence %d: %s", d.Sequence, d.Reason)
}

// VerifyChain walks entries in sequence order, recomputing every checksum and
// link. It returns the first divergence found, or nil if the chain is intact.
// An empty chain is intact.
func VerifyChain(entries []*types.AuditEntry) *Divergence {
	var prev *types.AuditEntry
	for _, e := range entries {
		if prev == nil {
			if e.PreviousChecksum != GenesisChecksum {
				return &Divergence{Sequence: e.Sequence, Reason: "first entry has non-genesis previous_checksum"}
			}
		} else {
			if e.Sequence != prev.Sequence+1 {
				return &Divergence{Sequence: e.Sequence,
					Reason: fmt.Sprintf("sequence gap after %d", prev.Sequence)}
			}
			if e.PreviousChecksum != prev.Checksum {
				return &Divergence{Sequence: e.Sequence, Reason: "previous_checksum does not match prior entry"}
			}
		}
		if got := ComputeChecksum(e); got != e.Checksum {
			return &Divergence{Sequence: e.Sequence, Reason: "recorded checksum does not match recomputation"}
		}
		prev = e
	}
	return nil
}
