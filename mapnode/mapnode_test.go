package mapnode

import (
	"errors"
	"testing"
)

func TestToSliceSlice(t *testing.T) {
	out, err := ToSlice([]int{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Errorf("got %+v", out)
	}
}

func TestToSliceArray(t *testing.T) {
	out, err := ToSlice([3]string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[1] != "b" {
		t.Errorf("got %+v", out)
	}
}

func TestToSliceRejectsNonSequence(t *testing.T) {
	_, err := ToSlice(42)
	if !errors.Is(err, ErrNotASequence) {
		t.Errorf("got %v", err)
	}
}

func TestToSliceRejectsNil(t *testing.T) {
	_, err := ToSlice(nil)
	if !errors.Is(err, ErrNotASequence) {
		t.Errorf("got %v", err)
	}
}

func TestMapExceptionError(t *testing.T) {
	m := &MapException{Results: []any{1, errors.New("boom"), 3}, Failed: 1}
	got := m.Error()
	if got == "" {
		t.Error("expected non-empty message")
	}
	if got != "mapnode: 1 of 3 element(s) failed" {
		t.Errorf("got %q", got)
	}
}
