package crdt

import (
	"errors"
	"fmt"
	"sort"
)

// Errors

// ErrEmptyClock is returned by the resolver functions Last,
// LWW and Reconcile when called on a Clock whose Size is 0:
// there is no value to pick a winner from.
var ErrEmptyClock = errors.New("crdt: clock holds no values")

// ErrMalformedClock is returned by Update and UpdateWithContext
// when the supplied client Clock does not have the shape they
// require: exactly one anonymous value and no entry carrying
// dotted values.
var ErrMalformedClock = errors.New("crdt: client clock must hold exactly one anonymous value and no dotted entry values")

// Structs

// DottedValue pairs a Value that is still live (has not been
// causally dominated) with the Dot, the per-replica event
// counter, that produced it.
type DottedValue struct {
	Dot   uint64
	Value interface{}
}

// Entry is the per-replica causal-history bucket described in
// spec.md §3.2: a Base counter covering a contiguous run of dots
// starting at 1, a sorted set of Exceptions covering dots known
// beyond a gap after Base, and the Values whose dots are known
// but have not yet been dominated by a later write, newest first.
type Entry struct {
	ID         string
	Base       uint64
	Exceptions []uint64
	Values     []DottedValue
}

// Clock is a CDVVSet: the causal history of one key plus the
// sibling values currently live for it. Clocks are immutable;
// every exported function in this package returns a fresh Clock
// rather than mutating its arguments. The zero value, Clock{},
// is the neutral element Sync folds from.
type Clock struct {
	Entries   []Entry
	Anonymous []interface{}
}

// CausalEntry is the values-stripped counterpart of Entry that
// makes up a Causal summary.
type CausalEntry struct {
	ID         string
	Base       uint64
	Exceptions []uint64
}

// Causal is the "version vector with exceptions" a client carries
// between a read and its next write, produced by Join.
type Causal struct {
	Entries []CausalEntry
}

// Functions

// NewClock returns a fresh Clock holding the supplied anonymous
// values and no causal history. This is the shape a client-side
// write starts from before it has been assigned a Dot.
func NewClock(anonymous ...interface{}) Clock {

	if len(anonymous) == 0 {
		return Clock{}
	}

	vals := make([]interface{}, len(anonymous))
	copy(vals, anonymous)

	return Clock{Anonymous: vals}
}

// NewClockFromCausal rebuilds a Clock from a Causal summary,
// attaching no dotted values to any entry, plus the supplied
// anonymous values. It is the constructor spec.md §4.9 calls
// "new(join(c), [...])".
func NewClockFromCausal(c Causal, anonymous ...interface{}) Clock {

	entries := make([]Entry, len(c.Entries))
	for i, ce := range c.Entries {
		entries[i] = Entry{
			ID:         ce.ID,
			Base:       ce.Base,
			Exceptions: append([]uint64(nil), ce.Exceptions...),
		}
	}

	var vals []interface{}
	if len(anonymous) > 0 {
		vals = make([]interface{}, len(anonymous))
		copy(vals, anonymous)
	}

	return Clock{Entries: entries, Anonymous: vals}
}

// lift absorbs a maximal contiguous run of counters starting at
// base+1 into base. exceptions must be sorted ascending on entry
// and is returned sorted ascending, containing no counter <= the
// returned base.
func lift(base uint64, exceptions []uint64) (uint64, []uint64) {

	i := 0
	for i < len(exceptions) && exceptions[i] == base+1 {
		base++
		i++
	}

	if i == 0 {
		return base, exceptions
	}

	return base, exceptions[i:]
}

// discard filters dottedValues against the known-dot set formed
// by base and exceptions. A pair is kept if its dot has not yet
// been observed (dot > base and dot not in exceptions); otherwise
// it is dropped and, if its dot lies above base, that dot is
// folded into the returned exception set. Input order of
// survivors is preserved in kept.
func discard(base uint64, exceptions []uint64, dottedValues []DottedValue) ([]uint64, []DottedValue) {

	excSet := make(map[uint64]struct{}, len(exceptions))
	for _, e := range exceptions {
		excSet[e] = struct{}{}
	}

	kept := make([]DottedValue, 0, len(dottedValues))

	for _, dv := range dottedValues {

		_, known := excSet[dv.Dot]

		if dv.Dot > base && !known {
			kept = append(kept, dv)
			continue
		}

		// The dot is dominated. If it is already covered by base
		// there is nothing to remember; only dots strictly beyond
		// base need to survive as an exception, or lift would
		// later absorb a duplicate and invariant 2 (no exception
		// <= base) would not hold across independently computed
		// merges of the same causal history.
		if dv.Dot > base {
			excSet[dv.Dot] = struct{}{}
		}
	}

	return sortedKeys(excSet), kept
}

// sortedKeys returns the keys of a uint64 set as an ascending slice.
func sortedKeys(s map[uint64]struct{}) []uint64 {

	out := make([]uint64, 0, len(s))
	for k := range s {
		out = append(out, k)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// unionSorted merges two already-sorted, duplicate-free uint64
// slices into one sorted, duplicate-free slice.
func unionSorted(a, b []uint64) []uint64 {

	out := make([]uint64, 0, len(a)+len(b))
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}

	out = append(out, a[i:]...)
	out = append(out, b[j:]...)

	return out
}

// syncDots merges two Entry values that share an id, per spec.md
// §4.2: both sides' values are discarded against the union of
// exceptions and the raised base, then base/exceptions are lifted
// once more. A dot live on both sides names the same write (dots
// are unique per replica event) and contributes only once.
func syncDots(e1, e2 Entry) Entry {

	base := e1.Base
	if e2.Base > base {
		base = e2.Base
	}

	exc0 := unionSorted(e1.Exceptions, e2.Exceptions)

	exc1, kept1 := discard(base, exc0, e1.Values)
	exc2, kept2 := discard(base, exc1, e2.Values)

	seen := make(map[uint64]struct{}, len(kept1))
	for _, dv := range kept1 {
		seen[dv.Dot] = struct{}{}
	}

	merged := kept1
	for _, dv := range kept2 {
		if _, dup := seen[dv.Dot]; dup {
			continue
		}
		merged = append(merged, dv)
	}

	base2, exc3 := lift(base, exc2)

	return Entry{
		ID:         e1.ID,
		Base:       base2,
		Exceptions: exc3,
		Values:     merged,
	}
}

// syncEntries performs the classic sorted merge by id described
// in spec.md §4.3.
func syncEntries(a, b []Entry) []Entry {

	out := make([]Entry, 0, len(a)+len(b))
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch {
		case a[i].ID < b[j].ID:
			out = append(out, a[i])
			i++
		case a[i].ID > b[j].ID:
			out = append(out, b[j])
			j++
		default:
			out = append(out, syncDots(a[i], b[j]))
			i++
			j++
		}
	}

	out = append(out, a[i:]...)
	out = append(out, b[j:]...)

	return out
}

// dedupeAnonymous removes duplicate values (by == comparison, which
// requires comparable payload types) from the concatenation of two
// anonymous-value lists.
func dedupeAnonymous(a, b []interface{}) []interface{} {

	out := make([]interface{}, 0, len(a)+len(b))
	seen := make(map[interface{}]struct{}, len(a)+len(b))

	for _, v := range append(append([]interface{}{}, a...), b...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}

// Sync merges two Clocks into one that summarizes both causal
// histories, keeping every sibling value not dominated by the
// other side, per spec.md §4.4. Clock{} is the neutral element.
func Sync(c1, c2 Clock) Clock {

	entries := syncEntries(c1.Entries, c2.Entries)

	var anonymous []interface{}

	switch {
	case len(c1.Anonymous) == 0 && len(c2.Anonymous) == 0:
		anonymous = nil
	case Less(c1, c2):
		anonymous = append([]interface{}(nil), c2.Anonymous...)
	case Less(c2, c1):
		anonymous = append([]interface{}(nil), c1.Anonymous...)
	default:
		anonymous = dedupeAnonymous(c1.Anonymous, c2.Anonymous)
	}

	return Clock{Entries: entries, Anonymous: anonymous}
}

// SyncAll folds Sync pairwise from the left over a list of Clocks,
// starting from the neutral Clock{}, per spec.md §4.4's note that
// "sync over a list folds pairwise from the left starting with the
// neutral sentinel".
func SyncAll(clocks ...Clock) Clock {

	out := Clock{}
	for _, c := range clocks {
		out = Sync(out, c)
	}

	return out
}

// Join extracts the causal summary of a Clock, folding every
// entry's live dots into its exceptions before lifting, per
// spec.md §4.5. This is the version vector a client echoes back
// to the store on its next write.
func Join(c Clock) Causal {

	entries := make([]CausalEntry, len(c.Entries))

	for i, e := range c.Entries {

		exc := append([]uint64(nil), e.Exceptions...)
		for _, dv := range e.Values {
			exc = unionSorted(exc, []uint64{dv.Dot})
		}

		base, exc := lift(e.Base, exc)

		entries[i] = CausalEntry{ID: e.ID, Base: base, Exceptions: exc}
	}

	return Causal{Entries: entries}
}

// maxKnownDot returns the greatest dot known for an entry, across
// its base, its exceptions, and the dots of its live values.
func maxKnownDot(e Entry) uint64 {

	max := e.Base

	for _, exc := range e.Exceptions {
		if exc > max {
			max = exc
		}
	}

	for _, dv := range e.Values {
		if dv.Dot > max {
			max = dv.Dot
		}
	}

	return max
}

// event inserts a fresh event authored by replica id carrying
// value v into entries, per spec.md §4.6. base and exceptions of
// an already-present entry are left as-is; later syncing or
// joining lifts them.
func event(entries []Entry, id string, v interface{}) []Entry {

	pos := sort.Search(len(entries), func(i int) bool { return entries[i].ID >= id })

	if pos < len(entries) && entries[pos].ID == id {

		e := entries[pos]
		newDot := maxKnownDot(e) + 1

		newValues := make([]DottedValue, 0, len(e.Values)+1)
		newValues = append(newValues, DottedValue{Dot: newDot, Value: v})
		newValues = append(newValues, e.Values...)

		out := make([]Entry, len(entries))
		copy(out, entries)
		out[pos] = Entry{ID: e.ID, Base: e.Base, Exceptions: e.Exceptions, Values: newValues}

		return out
	}

	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entries[:pos]...)
	out = append(out, Entry{ID: id, Base: 0, Values: []DottedValue{{Dot: 1, Value: v}}})
	out = append(out, entries[pos:]...)

	return out
}

// clientShapeOK reports whether client matches the precondition
// Update and UpdateWithContext require: exactly one anonymous
// value and no entry carrying dotted values.
func clientShapeOK(client Clock) bool {

	if len(client.Anonymous) != 1 {
		return false
	}

	for _, e := range client.Entries {
		if len(e.Values) != 0 {
			return false
		}
	}

	return true
}

// Update is update/2 from spec.md §4.7: it assigns client's lone
// anonymous value its first Dot from replica id.
func Update(client Clock, id string) (Clock, error) {

	if !clientShapeOK(client) {
		return Clock{}, fmt.Errorf("crdt.Update: %w", ErrMalformedClock)
	}

	entries := event(client.Entries, id, client.Anonymous[0])

	return Clock{Entries: entries}, nil
}

// UpdateWithContext is update/3 from spec.md §4.7: it syncs
// client's causal context against server before minting the new
// event, so the result is strictly causally greater than both
// client and server.
func UpdateWithContext(client, server Clock, id string) (Clock, error) {

	if !clientShapeOK(client) {
		return Clock{}, fmt.Errorf("crdt.UpdateWithContext: %w", ErrMalformedClock)
	}

	v := client.Anonymous[0]

	synced := Sync(Clock{Entries: client.Entries}, server)

	entries := event(synced.Entries, id, v)

	return Clock{Entries: entries, Anonymous: synced.Anonymous}, nil
}

// entryKnownDots returns the set described in spec.md §4.8 as
// D(base, exc) = {1..base} ∪ exc, used only to test subset
// relationships, so it is returned as a lookup set.
func entryKnownDots(base uint64, exceptions []uint64) map[uint64]struct{} {

	set := make(map[uint64]struct{}, base+uint64(len(exceptions)))
	for i := uint64(1); i <= base; i++ {
		set[i] = struct{}{}
	}
	for _, e := range exceptions {
		set[e] = struct{}{}
	}

	return set
}

// subsetKnownDots reports whether D(bBase,bExc) ⊆ D(aBase,aExc).
func subsetKnownDots(aBase uint64, aExc []uint64, bBase uint64, bExc []uint64) bool {

	aSet := entryKnownDots(aBase, aExc)
	bSet := entryKnownDots(bBase, bExc)

	for d := range bSet {
		if _, ok := aSet[d]; !ok {
			return false
		}
	}

	return true
}

func sameBaseAndExceptions(a, b Entry) bool {

	if a.Base != b.Base {
		return false
	}

	if len(a.Exceptions) != len(b.Exceptions) {
		return false
	}

	for i := range a.Exceptions {
		if a.Exceptions[i] != b.Exceptions[i] {
			return false
		}
	}

	return true
}

// greater implements spec.md §4.8's walk over two entry lists
// ordered by id, ignoring Values entirely.
func greater(a, b []Entry, strict bool) bool {

	i, j := 0, 0

	for i < len(a) && j < len(b) {

		switch {
		case a[i].ID == b[j].ID:

			if sameBaseAndExceptions(a[i], b[j]) {
				// strict unchanged
			} else if subsetKnownDots(a[i].Base, a[i].Exceptions, b[j].Base, b[j].Exceptions) {
				strict = true
			} else {
				return false
			}
			i++
			j++

		case a[i].ID < b[j].ID:
			// a has an id b lacks.
			strict = true
			i++

		default:
			// b has an id a entirely lacks (a is sorted ascending,
			// so this id will never appear later in a).
			return false
		}
	}

	if j < len(b) {
		return false
	}

	if i < len(a) {
		strict = true
	}

	return strict
}

// Less reports whether c1's causal history is strictly dominated
// by c2's, per spec.md §4.8. Both clocks are compared through
// their Join, so the dots of live values count as known dots.
// Anonymous values play no part.
func Less(c1, c2 Clock) bool {

	asEntries := func(c Causal) []Entry {
		out := make([]Entry, len(c.Entries))
		for i, ce := range c.Entries {
			out[i] = Entry{ID: ce.ID, Base: ce.Base, Exceptions: ce.Exceptions}
		}
		return out
	}

	return greater(asEntries(Join(c2)), asEntries(Join(c1)), false)
}

// Equal reports whether c1 and c2 have identical causal history,
// per spec.md §3.3 invariant 4: entry lists of equal length with
// pointwise-equal base, exceptions and value count. Values and
// anonymous content are not compared.
func Equal(c1, c2 Clock) bool {

	if len(c1.Entries) != len(c2.Entries) {
		return false
	}

	for i := range c1.Entries {

		e1, e2 := c1.Entries[i], c2.Entries[i]

		if e1.ID != e2.ID {
			return false
		}
		if !sameBaseAndExceptions(e1, e2) {
			return false
		}
		if len(e1.Values) != len(e2.Values) {
			return false
		}
	}

	return true
}
