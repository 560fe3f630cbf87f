package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/fieldnet/internal/ir"
)

// marshalEntries converts snapshot entries to canonical JSON TEXT.
// Entry order is kept; keys inside each entry are sorted.
func marshalEntries(entries []ir.SnapshotEntry) (string, error) {
	arr := make(ir.IRArray, len(entries))
	for i, e := range entries {
		arr[i] = ir.IRObject{
			"field": ir.IRString(e.Field),
			"value": ir.IRString(e.Value),
		}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal entries: %w", err)
	}
	return string(data), nil
}

// unmarshalEntries parses entries written by marshalEntries.
func unmarshalEntries(data string) ([]ir.SnapshotEntry, error) {
	entries := []ir.SnapshotEntry{}
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal entries: %w", err)
	}
	return entries, nil
}
