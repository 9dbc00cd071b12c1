package frontend

import (
	"fmt"
	"strings"

	"crypto/tls"

	"bufio"
)

// Structs

// Connection carries all information specific to one client
// connection accepted at the frontend.
type Connection struct {
	IncConn    *tls.Conn
	IncReader  *bufio.Reader
	ClientAddr string
}

// Functions

// Send takes in an answer text as a string and writes it to
// the connection to the client. In case an error occurs, this
// method returns it to the calling function.
func (c *Connection) Send(text string) error {

	_, err := fmt.Fprintf(c.IncConn, "%s\r\n", text)
	if err != nil {
		return err
	}

	return nil
}

// Receive wraps the main io.Reader function that awaits text
// until a newline symbol and deletes the symbols afterwards
// again. It returns the resulting string or an error.
func (c *Connection) Receive() (string, error) {

	text, err := c.IncReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(text, "\r\n"), nil
}
