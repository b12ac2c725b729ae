package tasks

import (
	"fmt"
	"sort"
)

// SortForDisplay orders tasks for rendering: date ascending, manual order
// ascending within a date, priority descending on equal order. Stable, so
// equal tasks keep their incoming relative positions.
func SortForDisplay(ts []Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Date != ts[j].Date {
			return ts[i].Date < ts[j].Date
		}
		if ts[i].Order != ts[j].Order {
			return ts[i].Order < ts[j].Order
		}
		return ts[i].Priority.Rank() > ts[j].Priority.Rank()
	})
}

// DragSequence computes the sequence that results from dragging srcID onto
// dstID: srcID is removed from its position and inserted immediately
// before dstID's position in the remaining sequence. Dropping a task onto
// itself returns the input unchanged.
func DragSequence(ids []string, srcID, dstID string) ([]string, error) {
	if srcID == dstID {
		return ids, nil
	}

	srcIdx, dstIdx := -1, -1
	for i, id := range ids {
		switch id {
		case srcID:
			srcIdx = i
		case dstID:
			dstIdx = i
		}
	}
	if srcIdx < 0 {
		return nil, fmt.Errorf("%w: drag source %q not in sequence", ErrNotFound, srcID)
	}
	if dstIdx < 0 {
		return nil, fmt.Errorf("%w: drag target %q not in sequence", ErrNotFound, dstID)
	}

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if i == srcIdx {
			continue
		}
		if id == dstID {
			out = append(out, srcID)
		}
		out = append(out, id)
	}
	return out, nil
}

// ValidateSequence rejects reorder sequences with duplicate ids.
func ValidateSequence(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty reorder sequence", ErrValidation)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q in reorder sequence", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
