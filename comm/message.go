package comm

import (
	"fmt"
	"strconv"
	"strings"
)

// Structs

// Message represents a CRDT synchronization message sent
// between store replicas. It consists of the vector clock
// of the originating replica and a marshalled crdt.ClockOp
// payload to apply at the receiving replica.
type Message struct {
	Sender string
	VClock map[string]int
	// Payload carries a crdt.ClockOp.String() for the
	// receiver to hand to crdt.ParseClockOp.
	Payload string
}

// Functions

// InitMessage returns a fresh Message variable.
func InitMessage() *Message {

	return &Message{
		VClock: make(map[string]int),
	}
}

// String marshalls given Message m into string representation
// so that we can send it out onto the TLS connection.
func (m *Message) String() string {

	var vclockValues string

	// Merge together all vector clock entries.
	for id, value := range m.VClock {

		if vclockValues == "" {
			vclockValues = fmt.Sprintf("%s:%d", id, value)
		} else {
			vclockValues = fmt.Sprintf("%s;%s:%d", vclockValues, id, value)
		}
	}

	// Return final string representation.
	return fmt.Sprintf("%s|%s|%s", m.Sender, vclockValues, m.Payload)
}

// Parse takes in supplied string representing a received
// message and parses it back into message struct form.
func Parse(msg string) (*Message, error) {

	// Initialize new message struct.
	m := InitMessage()

	// Remove attached newline symbol.
	msg = strings.TrimRight(msg, "\n")

	// Split message at pipe symbol at maximum two times.
	tmpMsg := strings.SplitN(msg, "|", 3)

	// Messages with less than three parts are discarded.
	if len(tmpMsg) < 3 {
		return nil, fmt.Errorf("comm.Parse: invalid sync message %q", msg)
	}

	// Check sender part of message.
	if len(tmpMsg[0]) < 1 {
		return nil, fmt.Errorf("comm.Parse: invalid sync message because sender replica name is missing")
	}

	// Put sender name into struct.
	m.Sender = tmpMsg[0]

	if tmpMsg[1] != "" {

		// Split first part at semicolons for vector clock.
		for _, pair := range strings.Split(tmpMsg[1], ";") {

			// Split at colon.
			c := strings.SplitN(pair, ":", 2)

			// Vector clock entries with less than two parts are discarded.
			if len(c) < 2 {
				return nil, fmt.Errorf("comm.Parse: invalid vector clock element %q", pair)
			}

			// Parse number from string.
			num, err := strconv.Atoi(c[1])
			if err != nil {
				return nil, fmt.Errorf("comm.Parse: invalid number as element in vector clock: %v", err)
			}

			// Place vector clock entry in struct.
			m.VClock[c[0]] = num
		}
	}

	// Put message payload into struct.
	m.Payload = tmpMsg[2]

	// Initialize new message struct with parsed values.
	return m, nil
}
