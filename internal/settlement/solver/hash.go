package solver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Hash fingerprints settle-up entries in their given order. Equal entry lists
// always hash equally, so a confirmation can detect that balances moved since
// the preview.
func Hash(entries []BalanceChange) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%d:%s:%t\n", e.ID, e.Change, e.Pending)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash fingerprints a balance snapshot and its pending changes.
// Members are hashed in id order; pending changes in the given order.
//
// Group settlements can legitimately differ between runs on the same input,
// so group previews are guarded by the input rather than the output.
func SnapshotHash(members []Member, pending []PendingChange) string {
	sorted := make([]Member, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h := sha256.New()
	for _, m := range sorted {
		fmt.Fprintf(h, "m:%d:%s\n", m.ID, m.Balance)
	}
	for _, p := range pending {
		fmt.Fprintf(h, "p:%d:%d:%s\n", p.SourceID, p.TargetID, p.Amount)
	}
	return hex.EncodeToString(h.Sum(nil))
}
