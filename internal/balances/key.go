package balances

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Key identifies one balance row.
type Key struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
}

func (k Key) valid() bool {
	return k.ProductID != uuid.Nil && k.WarehouseID != uuid.Nil
}

// SortedKeys returns the distinct keys in lock order. Every writer that
// touches more than one balance acquires locks in this order.
func SortedKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].WarehouseID[:], out[j].WarehouseID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0
	})
	return out
}
