package crdt

import (
	"fmt"
	"strconv"
	"strings"
)

// Structs

// ClockOp represents the broadcast update message exchanged
// between store replicas: the key a Clock belongs to plus the
// Clock itself, ready to be sent via the comm package's
// causally-ordered broadcast.
type ClockOp struct {
	Key   string
	Clock Clock
}

// Functions

// InitClockOp returns a fresh, empty ClockOp.
func InitClockOp() *ClockOp {
	return &ClockOp{}
}

// String marshals msg into its wire representation:
// key|entries|anonymous, where entries are id:base:exceptions:values
// separated by semicola, exceptions are comma-separated counters,
// and values are dot=value pairs, also comma-separated.
func (msg *ClockOp) String() string {

	entryParts := make([]string, len(msg.Clock.Entries))

	for i, e := range msg.Clock.Entries {

		excStrs := make([]string, len(e.Exceptions))
		for j, x := range e.Exceptions {
			excStrs[j] = strconv.FormatUint(x, 10)
		}

		valStrs := make([]string, len(e.Values))
		for j, dv := range e.Values {
			// TODO: Escape possible '=', ',' or ':' in dv.Value.
			valStrs[j] = fmt.Sprintf("%d=%v", dv.Dot, dv.Value)
		}

		entryParts[i] = fmt.Sprintf("%s:%d:%s:%s", e.ID, e.Base, strings.Join(excStrs, ","), strings.Join(valStrs, ","))
	}

	anonStrs := make([]string, len(msg.Clock.Anonymous))
	for i, v := range msg.Clock.Anonymous {
		anonStrs[i] = fmt.Sprintf("%v", v)
	}

	return fmt.Sprintf("%s|%s|%s", msg.Key, strings.Join(entryParts, ";"), strings.Join(anonStrs, ","))
}

// ParseClockOp takes in a marshalled ClockOp taken from network
// communication and turns it back into the defined struct
// representation. Values are returned as strings: this text wire
// format does not round-trip arbitrary value types.
func ParseClockOp(raw string) (*ClockOp, error) {

	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("crdt.ParseClockOp: malformed message %q, expected key|entries|anonymous", raw)
	}

	var entries []Entry

	if parts[1] != "" {
		for _, rawEntry := range strings.Split(parts[1], ";") {

			fields := strings.SplitN(rawEntry, ":", 4)
			if len(fields) != 4 {
				return nil, fmt.Errorf("crdt.ParseClockOp: malformed entry %q", rawEntry)
			}

			base, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("crdt.ParseClockOp: invalid base in %q: %v", rawEntry, err)
			}

			var exceptions []uint64
			if fields[2] != "" {
				for _, x := range strings.Split(fields[2], ",") {
					d, err := strconv.ParseUint(x, 10, 64)
					if err != nil {
						return nil, fmt.Errorf("crdt.ParseClockOp: invalid exception in %q: %v", rawEntry, err)
					}
					exceptions = append(exceptions, d)
				}
			}

			var values []DottedValue
			if fields[3] != "" {
				for _, rawValue := range strings.Split(fields[3], ",") {

					dv := strings.SplitN(rawValue, "=", 2)
					if len(dv) != 2 {
						return nil, fmt.Errorf("crdt.ParseClockOp: malformed value %q", rawValue)
					}

					dot, err := strconv.ParseUint(dv[0], 10, 64)
					if err != nil {
						return nil, fmt.Errorf("crdt.ParseClockOp: invalid dot in %q: %v", rawValue, err)
					}

					values = append(values, DottedValue{Dot: dot, Value: dv[1]})
				}
			}

			entries = append(entries, Entry{ID: fields[0], Base: base, Exceptions: exceptions, Values: values})
		}
	}

	var anonymous []interface{}
	if parts[2] != "" {
		for _, a := range strings.Split(parts[2], ",") {
			anonymous = append(anonymous, a)
		}
	}

	return &ClockOp{
		Key:   parts[0],
		Clock: Clock{Entries: entries, Anonymous: anonymous},
	}, nil
}
