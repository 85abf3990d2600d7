package audio

import (
	"bytes"
	"testing"
)

func TestConcat(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5}

	out := Concat(a, b)
	if len(out) != len(a)+len(b) {
		t.Fatalf("Expected length %d, got %d", len(a)+len(b), len(out))
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Expected a followed by b, got %v", out)
	}
}

func TestConcat_Empty(t *testing.T) {
	x := []byte{9, 8, 7}

	if !bytes.Equal(Concat(nil, x), x) {
		t.Error("Expected concat(nil, x) == x")
	}
	if !bytes.Equal(Concat(x, nil), x) {
		t.Error("Expected concat(x, nil) == x")
	}
	if !bytes.Equal(Concat([]byte{}, x), x) {
		t.Error("Expected concat(empty, x) == x")
	}

	out := Concat(nil, nil)
	if out == nil || len(out) != 0 {
		t.Errorf("Expected zero-length non-nil buffer, got %v", out)
	}
}

func TestConcat_DoesNotAlias(t *testing.T) {
	a := make([]byte, 2, 16)
	a[0], a[1] = 1, 2
	b := []byte{3}

	out := Concat(a, b)
	out[0] = 42

	if a[0] != 1 {
		t.Error("Expected input a to be untouched")
	}

	// a has spare capacity; a naive append would write into it
	_ = Concat(a, []byte{7})
	if !bytes.Equal(out, []byte{42, 2, 3}) {
		t.Errorf("Expected earlier result to be untouched, got %v", out)
	}
}

func TestAccumulator_Order(t *testing.T) {
	acc := NewAccumulator(0)
	if acc.Len() != 0 || acc.Segments() != 0 {
		t.Error("Expected accumulator to be empty initially")
	}

	first := []byte{1, 1, 1, 1}
	second := []byte{2, 2, 2, 2, 2, 2, 2, 2}
	acc.Append(first)
	acc.Append(second)

	if acc.Len() != 12 {
		t.Errorf("Expected length 12, got %d", acc.Len())
	}
	if acc.Segments() != 2 {
		t.Errorf("Expected 2 segments, got %d", acc.Segments())
	}
	if !bytes.Equal(acc.Bytes(), Concat(first, second)) {
		t.Errorf("Expected arrival order concat, got %v", acc.Bytes())
	}
}

func TestAccumulator_EmptySegment(t *testing.T) {
	acc := NewAccumulator(8)
	acc.Append(nil)
	acc.Append([]byte{5})

	if acc.Len() != 1 {
		t.Errorf("Expected length 1, got %d", acc.Len())
	}
	if acc.Segments() != 2 {
		t.Errorf("Expected 2 segments, got %d", acc.Segments())
	}
}

func TestAccumulator_MatchesConcatFold(t *testing.T) {
	segments := [][]byte{{1, 2}, nil, {3}, {}, {4, 5, 6, 7}}

	var folded []byte
	acc := NewAccumulator(2)
	for i, seg := range segments {
		folded = Concat(folded, seg)
		acc.Append(seg)
		if !bytes.Equal(acc.Bytes(), folded) {
			t.Fatalf("After segment %d expected %v, got %v", i, folded, acc.Bytes())
		}
	}

	// later writes to a segment must not show through
	segments[0][0] = 99
	if acc.Bytes()[0] != 1 {
		t.Error("Expected accumulator not to alias appended segments")
	}
}
