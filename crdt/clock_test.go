package crdt

import (
	"reflect"
	"testing"
)

// Functions

// causalEntriesEqual compares two CausalEntry slices field by
// field, treating a nil and an empty Exceptions slice as
// equivalent (lift and set construction do not guarantee which
// of the two an empty residual set takes, and spec.md does not
// distinguish them).
func causalEntriesEqual(a, b []CausalEntry) bool {

	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i].ID != b[i].ID || a[i].Base != b[i].Base {
			return false
		}
		if len(a[i].Exceptions) != len(b[i].Exceptions) {
			return false
		}
		for j := range a[i].Exceptions {
			if a[i].Exceptions[j] != b[i].Exceptions[j] {
				return false
			}
		}
	}

	return true
}

// TestLift executes a white-box unit test on implemented
// lift() functionality.
func TestLift(t *testing.T) {

	tests := []struct {
		base     uint64
		exc      []uint64
		wantBase uint64
		wantExc  []uint64
	}{
		{0, nil, 0, nil},
		{0, []uint64{1, 2, 3}, 3, nil},
		{1, []uint64{2, 4, 5}, 2, []uint64{4, 5}},
		{4, []uint64{6, 7}, 4, []uint64{6, 7}},
		{4, []uint64{5, 6, 9}, 6, []uint64{9}},
	}

	for _, test := range tests {

		base, exc := lift(test.base, test.exc)

		// An empty residual may come back as nil or as an empty
		// slice; both mean that no exceptions remain.
		excOK := reflect.DeepEqual(exc, test.wantExc) || (len(exc) == 0 && len(test.wantExc) == 0)

		if base != test.wantBase || !excOK {
			t.Fatalf("[crdt.TestLift] lift(%d, %v) = (%d, %v), want (%d, %v)\n",
				test.base, test.exc, base, exc, test.wantBase, test.wantExc)
		}
	}
}

// TestDiscard executes a white-box unit test on implemented
// discard() functionality.
func TestDiscard(t *testing.T) {

	dotted := []DottedValue{{Dot: 5, Value: "v5"}, {Dot: 2, Value: "v2"}, {Dot: 7, Value: "v7"}}

	exc, kept := discard(4, []uint64{7}, dotted)

	if len(kept) != 1 || kept[0].Dot != 5 {
		t.Fatalf("[crdt.TestDiscard] Expected only dot 5 to survive, got %v\n", kept)
	}

	wantExc := []uint64{7}
	if !reflect.DeepEqual(exc, wantExc) {
		t.Fatalf("[crdt.TestDiscard] Expected exceptions %v, got %v\n", wantExc, exc)
	}
}

// TestDiscardBelowBaseLeavesNoResidue checks that a dominated dot
// at or below base never appears in the returned exception set,
// per spec.md §3.3 invariant 2.
func TestDiscardBelowBaseLeavesNoResidue(t *testing.T) {

	exc, kept := discard(4, nil, []DottedValue{{Dot: 1, Value: "v1"}, {Dot: 4, Value: "v4"}})

	if len(kept) != 0 {
		t.Fatalf("[crdt.TestDiscardBelowBaseLeavesNoResidue] Expected nothing kept, got %v\n", kept)
	}
	if len(exc) != 0 {
		t.Fatalf("[crdt.TestDiscardBelowBaseLeavesNoResidue] Expected no exceptions for dots already covered by base, got %v\n", exc)
	}
}

// TestSyncDots executes a white-box unit test on implemented
// syncDots() functionality, following spec.md §4.2.
func TestSyncDots(t *testing.T) {

	e1 := Entry{ID: "a", Base: 2, Values: []DottedValue{{Dot: 3, Value: "v3"}}}
	e2 := Entry{ID: "a", Base: 1, Values: []DottedValue{{Dot: 2, Value: "v2"}}}

	merged := syncDots(e1, e2)

	// e2's dot 2 is already covered by e1's base 2, and e1's live
	// dot 3 stays a value: only exceptions are lifted into base.
	if merged.Base != 2 {
		t.Fatalf("[crdt.TestSyncDots] Expected base 2 after lifting, got %d\n", merged.Base)
	}
	if len(merged.Values) != 1 || merged.Values[0].Dot != 3 {
		t.Fatalf("[crdt.TestSyncDots] Expected only dot 3 to survive, got %v\n", merged.Values)
	}
}

// TestEvent executes a white-box unit test on implemented
// event() functionality, matching spec.md §8.2 scenario S2.
func TestEvent(t *testing.T) {

	entries := []Entry{{ID: "a", Base: 0, Values: []DottedValue{{Dot: 1, Value: "v1"}}}}

	out := event(entries, "a", "v2")
	if len(out) != 1 || out[0].Base != 0 || len(out[0].Values) != 2 || out[0].Values[0].Dot != 2 {
		t.Fatalf("[crdt.TestEvent] event(..., a, v2) produced unexpected entry: %+v\n", out[0])
	}

	out2 := event(entries, "b", "v2")
	if len(out2) != 2 || out2[0].ID != "a" || out2[1].ID != "b" || out2[1].Values[0].Dot != 1 {
		t.Fatalf("[crdt.TestEvent] event(..., b, v2) produced unexpected entries: %+v\n", out2)
	}
}

// TestJoinProgression exercises spec.md §8.2 scenario S1.
func TestJoinProgression(t *testing.T) {

	a := NewClock("v1")
	a1, err := Update(a, "a")
	if err != nil {
		t.Fatalf("[crdt.TestJoinProgression] Update failed: %v\n", err)
	}

	joinA1 := Join(a1)
	want := []CausalEntry{{ID: "a", Base: 1}}
	if !causalEntriesEqual(joinA1.Entries, want) {
		t.Fatalf("[crdt.TestJoinProgression] join(A1) = %+v, want %+v\n", joinA1.Entries, want)
	}

	b := NewClockFromCausal(joinA1, "v2")
	b1, err := UpdateWithContext(b, a1, "b")
	if err != nil {
		t.Fatalf("[crdt.TestJoinProgression] UpdateWithContext failed: %v\n", err)
	}

	joinB1 := Join(b1)
	want2 := []CausalEntry{{ID: "a", Base: 1}, {ID: "b", Base: 1}}
	if !causalEntriesEqual(joinB1.Entries, want2) {
		t.Fatalf("[crdt.TestJoinProgression] join(B1) = %+v, want %+v\n", joinB1.Entries, want2)
	}
}

// TestSiblingAccumulation exercises spec.md §8.2 scenario S3: a
// single replica a produces v1 then v2, replica b concurrently
// observes only a's v1-context and writes v4, while replica a,
// still working from its own later context, writes v5 concurrent
// with v2.
func TestSiblingAccumulation(t *testing.T) {

	a0, err := Update(NewClock("v1"), "a")
	if err != nil {
		t.Fatalf("[crdt.TestSiblingAccumulation] Update a0 failed: %v\n", err)
	}

	a1, err := UpdateWithContext(NewClockFromCausal(Join(a0), "v2"), a0, "a")
	if err != nil {
		t.Fatalf("[crdt.TestSiblingAccumulation] Update a1 failed: %v\n", err)
	}
	if len(a1.Entries) != 1 || len(a1.Entries[0].Values) != 1 || a1.Entries[0].Values[0].Value != "v2" {
		t.Fatalf("[crdt.TestSiblingAccumulation] Unexpected A1: %+v\n", a1.Entries[0])
	}

	a2, err := UpdateWithContext(NewClockFromCausal(Join(a1), "v3"), a1, "b")
	if err != nil {
		t.Fatalf("[crdt.TestSiblingAccumulation] Update a2 failed: %v\n", err)
	}
	if len(a2.Entries) != 2 || a2.Entries[0].ID != "a" || a2.Entries[1].ID != "b" {
		t.Fatalf("[crdt.TestSiblingAccumulation] Unexpected A2 entries: %+v\n", a2.Entries)
	}
	if len(a2.Entries[0].Values) != 0 {
		t.Fatalf("[crdt.TestSiblingAccumulation] Expected A2's a-entry to have no live values, got %+v\n", a2.Entries[0].Values)
	}
	if len(a2.Entries[1].Values) != 1 || a2.Entries[1].Values[0].Value != "v3" {
		t.Fatalf("[crdt.TestSiblingAccumulation] Expected A2's b-entry to hold v3, got %+v\n", a2.Entries[1].Values)
	}

	a3, err := UpdateWithContext(NewClockFromCausal(Join(a0), "v4"), a1, "b")
	if err != nil {
		t.Fatalf("[crdt.TestSiblingAccumulation] Update a3 failed: %v\n", err)
	}
	if len(a3.Entries[0].Values) != 1 || a3.Entries[0].Values[0].Value != "v2" {
		t.Fatalf("[crdt.TestSiblingAccumulation] Expected A3 to retain v2 under a, got %+v\n", a3.Entries[0].Values)
	}

	a4, err := UpdateWithContext(NewClockFromCausal(Join(a0), "v5"), a1, "a")
	if err != nil {
		t.Fatalf("[crdt.TestSiblingAccumulation] Update a4 failed: %v\n", err)
	}
	if len(a4.Entries[0].Values) != 2 || a4.Entries[0].Values[0].Value != "v5" || a4.Entries[0].Values[1].Value != "v2" {
		t.Fatalf("[crdt.TestSiblingAccumulation] Expected A4 to carry v5 concurrent with v2 under a, got %+v\n", a4.Entries[0].Values)
	}
}

// TestLessOrdering exercises spec.md §8.2 scenario S5's causal
// graph: A < B < C, A < B2, B2 < D, C < D, with B and B2
// concurrent, and B2 and C concurrent.
func TestLessOrdering(t *testing.T) {

	a, _ := Update(NewClock("va"), "x")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "vb"), a, "x")
	b2, _ := UpdateWithContext(NewClockFromCausal(Join(a), "vb2"), a, "y")
	c, _ := UpdateWithContext(NewClockFromCausal(Join(b), "vc"), b, "x")

	if !Less(a, b) {
		t.Fatalf("[crdt.TestLessOrdering] Expected A < B\n")
	}
	if !Less(b, c) {
		t.Fatalf("[crdt.TestLessOrdering] Expected B < C\n")
	}
	if !Less(a, b2) {
		t.Fatalf("[crdt.TestLessOrdering] Expected A < B2\n")
	}
	if Less(b2, c) {
		t.Fatalf("[crdt.TestLessOrdering] Expected B2 and C to be concurrent\n")
	}
	if Less(c, b2) {
		t.Fatalf("[crdt.TestLessOrdering] Expected B2 and C to be concurrent\n")
	}
	if Less(b, b2) {
		t.Fatalf("[crdt.TestLessOrdering] Expected B and B2 to be concurrent\n")
	}
	if Less(b2, b) {
		t.Fatalf("[crdt.TestLessOrdering] Expected B and B2 to be concurrent\n")
	}
	if Less(a, a) {
		t.Fatalf("[crdt.TestLessOrdering] Expected A < A to be false\n")
	}
}

// TestSyncIdempotent checks property 1 from spec.md §8.1.
func TestSyncIdempotent(t *testing.T) {

	a, _ := Update(NewClock("v1"), "a")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v2"), a, "b")

	if !Equal(Sync(b, b), b) {
		t.Fatalf("[crdt.TestSyncIdempotent] Expected sync(c, c) to equal c\n")
	}
}

// TestSyncCommutative checks property 2 from spec.md §8.1.
func TestSyncCommutative(t *testing.T) {

	a, _ := Update(NewClock("v1"), "a")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v2"), a, "b")
	c, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v3"), a, "c")

	if !Equal(Sync(b, c), Sync(c, b)) {
		t.Fatalf("[crdt.TestSyncCommutative] Expected sync(b, c) to equal sync(c, b)\n")
	}
}

// TestSyncAssociative checks property 3 from spec.md §8.1.
func TestSyncAssociative(t *testing.T) {

	a, _ := Update(NewClock("v1"), "a")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v2"), a, "b")
	c, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v3"), a, "c")

	left := Sync(Sync(a, b), c)
	right := Sync(a, Sync(b, c))

	if !Equal(left, right) {
		t.Fatalf("[crdt.TestSyncAssociative] Expected sync(sync(a,b),c) to equal sync(a,sync(b,c))\n")
	}
}

// TestUpdateMonotonic checks property 4 from spec.md §8.1.
func TestUpdateMonotonic(t *testing.T) {

	c, _ := Update(NewClock("v1"), "a")

	next, _ := UpdateWithContext(NewClockFromCausal(Join(c), "v2"), c, "a")

	if !Less(c, next) {
		t.Fatalf("[crdt.TestUpdateMonotonic] Expected c < update(c)\n")
	}
	if Less(next, c) {
		t.Fatalf("[crdt.TestUpdateMonotonic] Expected update(c) < c to be false\n")
	}
}

// TestNoFalseConcurrency checks property 5 from spec.md §8.1.
func TestNoFalseConcurrency(t *testing.T) {

	a, _ := Update(NewClock("v1"), "a")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v2"), a, "a")

	if Less(a, b) && Less(b, a) {
		t.Fatalf("[crdt.TestNoFalseConcurrency] less(a,b) and less(b,a) must never both be true\n")
	}
}

// TestJoinRoundTrip checks property 6 from spec.md §8.1.
func TestJoinRoundTrip(t *testing.T) {

	a, _ := Update(NewClock("v1"), "a")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v2"), a, "b")

	rebuilt := NewClockFromCausal(Join(b))

	if !causalEntriesEqual(Join(rebuilt).Entries, Join(b).Entries) {
		t.Fatalf("[crdt.TestJoinRoundTrip] Expected join(new(join(c), [])) to equal join(c)\n")
	}
}

// TestMapPreservesStructure checks property 8 from spec.md §8.1.
func TestMapPreservesStructure(t *testing.T) {

	a, _ := Update(NewClock("v1"), "a")
	b, _ := UpdateWithContext(NewClockFromCausal(Join(a), "v2"), a, "b")

	upper := func(v interface{}) interface{} {
		s, _ := v.(string)
		return s + "!"
	}

	mapped := Map(upper, b)

	if !reflect.DeepEqual(IDs(mapped), IDs(b)) {
		t.Fatalf("[crdt.TestMapPreservesStructure] Expected ids(map(f,c)) = ids(c)\n")
	}
	if Size(mapped) != Size(b) {
		t.Fatalf("[crdt.TestMapPreservesStructure] Expected size(map(f,c)) = size(c)\n")
	}
}

// TestUpdateMalformedClient checks that Update rejects a client
// clock that does not match the precondition from spec.md §4.7.
func TestUpdateMalformedClient(t *testing.T) {

	bad := Clock{Entries: []Entry{{ID: "a", Base: 1, Values: []DottedValue{{Dot: 1, Value: "oops"}}}}, Anonymous: []interface{}{"v"}}

	if _, err := Update(bad, "a"); err == nil {
		t.Fatalf("[crdt.TestUpdateMalformedClient] Expected error for malformed client clock\n")
	}

	tooMany := NewClock("v1", "v2")
	if _, err := Update(tooMany, "a"); err == nil {
		t.Fatalf("[crdt.TestUpdateMalformedClient] Expected error for client with more than one anonymous value\n")
	}
}
