package tasks

import (
	"errors"
	"reflect"
	"testing"
)

func TestSortForDisplayDateThenOrder(t *testing.T) {
	ts := []Task{
		{ID: "b", Date: "2026-08-24", Order: 0},
		{ID: "c", Date: "2026-08-23", Order: 1},
		{ID: "a", Date: "2026-08-23", Order: 0},
	}

	SortForDisplay(ts)

	got := idsOf(ts)
	want := []string{"a", "c", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got %v want %v", got, want)
	}
}

func TestSortForDisplayPriorityBreaksOrderTies(t *testing.T) {
	ts := []Task{
		{ID: "low", Date: "2026-08-23", Order: 3, Priority: PriorityLow},
		{ID: "high", Date: "2026-08-23", Order: 3, Priority: PriorityHigh},
		{ID: "med", Date: "2026-08-23", Order: 3, Priority: PriorityMedium},
	}

	SortForDisplay(ts)

	got := idsOf(ts)
	want := []string{"high", "med", "low"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got %v want %v", got, want)
	}
}

func TestSortForDisplayIsStable(t *testing.T) {
	ts := []Task{
		{ID: "first", Date: "2026-08-23", Order: 1, Priority: PriorityMedium},
		{ID: "second", Date: "2026-08-23", Order: 1, Priority: PriorityMedium},
	}

	SortForDisplay(ts)
	SortForDisplay(ts)

	got := idsOf(ts)
	want := []string{"first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("equal tasks moved: got %v want %v", got, want)
	}
}

func TestDragSequenceInsertsBeforeTarget(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	got, err := DragSequence(ids, "d", "b")
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	want := []string{"a", "d", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sequence: got %v want %v", got, want)
	}
}

func TestDragSequenceForward(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	got, err := DragSequence(ids, "a", "c")
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	want := []string{"b", "a", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected sequence: got %v want %v", got, want)
	}
}

func TestDragSequenceSelfDropIsNoop(t *testing.T) {
	ids := []string{"a", "b", "c"}

	got, err := DragSequence(ids, "b", "b")
	if err != nil {
		t.Fatalf("drag: %v", err)
	}
	if !reflect.DeepEqual(got, ids) {
		t.Fatalf("self drop changed sequence: got %v", got)
	}
}

func TestDragSequenceUnknownIDs(t *testing.T) {
	ids := []string{"a", "b"}

	if _, err := DragSequence(ids, "x", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}
	if _, err := DragSequence(ids, "a", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}
}

func TestValidateSequenceRejectsDuplicates(t *testing.T) {
	err := ValidateSequence([]string{"a", "b", "a"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidateSequenceRejectsEmpty(t *testing.T) {
	if err := ValidateSequence(nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func idsOf(ts []Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
