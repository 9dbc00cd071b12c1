package crdt

import "fmt"

// Functions

// Size returns the total count of dotted values plus anonymous
// values currently live in c.
func Size(c Clock) int {

	n := len(c.Anonymous)
	for _, e := range c.Entries {
		n += len(e.Values)
	}

	return n
}

// IDs returns the ids of c's entries, in stored (ascending) order.
func IDs(c Clock) []string {

	ids := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		ids[i] = e.ID
	}

	return ids
}

// Values returns every live value in c: anonymous values first,
// then the concatenation of every entry's dotted values,
// head-to-tail, in entry order, per spec.md §4.10.
func Values(c Clock) []interface{} {

	vals := make([]interface{}, 0, Size(c))

	vals = append(vals, c.Anonymous...)

	for _, e := range c.Entries {
		for _, dv := range e.Values {
			vals = append(vals, dv.Value)
		}
	}

	return vals
}

// Map rewrites every value in c, dotted and anonymous, with f.
// Structure and order are preserved.
func Map(f func(interface{}) interface{}, c Clock) Clock {

	var anonymous []interface{}
	if len(c.Anonymous) > 0 {
		anonymous = make([]interface{}, len(c.Anonymous))
		for i, v := range c.Anonymous {
			anonymous[i] = f(v)
		}
	}

	entries := make([]Entry, len(c.Entries))
	for i, e := range c.Entries {

		var values []DottedValue
		if len(e.Values) > 0 {
			values = make([]DottedValue, len(e.Values))
			for j, dv := range e.Values {
				values[j] = DottedValue{Dot: dv.Dot, Value: f(dv.Value)}
			}
		}

		entries[i] = Entry{ID: e.ID, Base: e.Base, Exceptions: e.Exceptions, Values: values}
	}

	return Clock{Entries: entries, Anonymous: anonymous}
}

// winnerOrigin records where find_entry's running winner came
// from: either an anonymous value, or the dotted head of entry ID.
type winnerOrigin struct {
	anonymous bool
	id        string
}

// findEntry folds the reflexive predicate f (f(a, b) == true iff
// a <= b in the caller's order) over every anonymous value and
// every entry's dotted head, per spec.md §4.9. It reports the
// winning value, its origin, and whether any candidate existed.
func findEntry(f func(a, b interface{}) bool, c Clock) (interface{}, winnerOrigin, bool) {

	var winner interface{}
	var origin winnerOrigin
	have := false

	consider := func(candidate interface{}, o winnerOrigin) {
		if !have {
			winner = candidate
			origin = o
			have = true
			return
		}
		if f(winner, candidate) {
			winner = candidate
			origin = o
		}
	}

	for _, v := range c.Anonymous {
		consider(v, winnerOrigin{anonymous: true})
	}

	for _, e := range c.Entries {
		if len(e.Values) == 0 {
			continue
		}
		consider(e.Values[0].Value, winnerOrigin{id: e.ID})
	}

	return winner, origin, have
}

// Last returns only the winning value determined by findEntry.
func Last(f func(a, b interface{}) bool, c Clock) (interface{}, error) {

	winner, _, ok := findEntry(f, c)
	if !ok {
		return nil, fmt.Errorf("crdt.Last: %w", ErrEmptyClock)
	}

	return winner, nil
}

// LWW returns a Clock with the same causal summary as c (Join(c)
// equals Join of the result) but with only the winning value
// retained, per spec.md §4.9.
func LWW(f func(a, b interface{}) bool, c Clock) (Clock, error) {

	winner, origin, ok := findEntry(f, c)
	if !ok {
		return Clock{}, fmt.Errorf("crdt.LWW: %w", ErrEmptyClock)
	}

	if origin.anonymous {
		return NewClockFromCausal(Join(c), winner), nil
	}

	joined := Join(c)

	entries := make([]Entry, len(c.Entries))
	for i, e := range c.Entries {

		if e.ID != origin.id {
			ce := joined.Entries[i]
			entries[i] = Entry{ID: e.ID, Base: ce.Base, Exceptions: ce.Exceptions}
			continue
		}

		// Dots of the dropped values under the winner's id stay
		// known, so that Join of the result equals Join(c).
		exc := append([]uint64(nil), e.Exceptions...)
		for _, dv := range e.Values[1:] {
			exc = unionSorted(exc, []uint64{dv.Dot})
		}
		base, exc := lift(e.Base, exc)

		entries[i] = Entry{
			ID:         e.ID,
			Base:       base,
			Exceptions: exc,
			Values:     []DottedValue{e.Values[0]},
		}
	}

	return Clock{Entries: entries}, nil
}

// Reconcile replaces every live value in c with the single value
// f returns when given all of them, dotted and anonymous, per
// spec.md §4.9.
func Reconcile(f func([]interface{}) interface{}, c Clock) (Clock, error) {

	if Size(c) == 0 {
		return Clock{}, fmt.Errorf("crdt.Reconcile: %w", ErrEmptyClock)
	}

	replacement := f(Values(c))

	return NewClockFromCausal(Join(c), replacement), nil
}
