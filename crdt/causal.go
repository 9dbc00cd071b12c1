package crdt

import (
	"fmt"
	"strconv"
	"strings"
)

// Functions

// String marshals a Causal into the wire token a client carries
// between a read and its next write: id:base:exceptions entries
// separated by semicola, exceptions comma-separated. It mirrors
// ClockOp's entries format but omits dotted values, since a
// Causal is values-stripped by definition.
func (c Causal) String() string {

	entryParts := make([]string, len(c.Entries))

	for i, ce := range c.Entries {

		excStrs := make([]string, len(ce.Exceptions))
		for j, x := range ce.Exceptions {
			excStrs[j] = strconv.FormatUint(x, 10)
		}

		entryParts[i] = fmt.Sprintf("%s:%d:%s", ce.ID, ce.Base, strings.Join(excStrs, ","))
	}

	return strings.Join(entryParts, ";")
}

// ParseCausal takes in a marshalled Causal token taken from a
// client request and turns it back into the defined struct
// representation. An empty token parses to an empty Causal, the
// context a client supplies on a first write to a previously
// unseen key.
func ParseCausal(raw string) (Causal, error) {

	if raw == "" {
		return Causal{}, nil
	}

	var entries []CausalEntry

	for _, rawEntry := range strings.Split(raw, ";") {

		fields := strings.SplitN(rawEntry, ":", 3)
		if len(fields) != 3 {
			return Causal{}, fmt.Errorf("crdt.ParseCausal: malformed entry %q", rawEntry)
		}

		base, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Causal{}, fmt.Errorf("crdt.ParseCausal: invalid base in %q: %v", rawEntry, err)
		}

		var exceptions []uint64
		if fields[2] != "" {
			for _, x := range strings.Split(fields[2], ",") {
				d, err := strconv.ParseUint(x, 10, 64)
				if err != nil {
					return Causal{}, fmt.Errorf("crdt.ParseCausal: invalid exception in %q: %v", rawEntry, err)
				}
				exceptions = append(exceptions, d)
			}
		}

		entries = append(entries, CausalEntry{ID: fields[0], Base: base, Exceptions: exceptions})
	}

	return Causal{Entries: entries}, nil
}
