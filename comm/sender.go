package comm

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"crypto/tls"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

// Sender bundles information needed for sending
// out sync messages via CRDTs.
type Sender struct {
	lock      *sync.Mutex
	logger    log.Logger
	name      string
	tlsConfig *tls.Config
	inc       chan Message
	msgInLog  chan struct{}
	writeLog  *os.File
	updLog    *os.File
	incVClock chan string
	updVClock chan map[string]int
	syncRetry int
	syncTimeo int
	peers     map[string]string
}

// Functions

// InitSender initializes above struct and sets
// default values for most involved elements to start
// with. It returns a channel local processes can put
// CRDT changes into, so that those changes will be
// communicated to connected replicas.
func InitSender(logger log.Logger, name string, logFilePath string, tlsConfig *tls.Config, incVClock chan string, updVClock chan map[string]int, syncRetry int, syncTimeo int, peers map[string]string) (chan Message, error) {

	// Create and initialize what we need for
	// a CRDT sender routine.
	sender := &Sender{
		lock:      &sync.Mutex{},
		logger:    logger,
		name:      name,
		tlsConfig: tlsConfig,
		inc:       make(chan Message),
		msgInLog:  make(chan struct{}, 1),
		incVClock: incVClock,
		updVClock: updVClock,
		syncRetry: syncRetry,
		syncTimeo: syncTimeo,
		peers:     peers,
	}

	// Open log file descriptor for writing.
	write, err := os.OpenFile(logFilePath, (os.O_CREATE | os.O_WRONLY | os.O_APPEND), 0600)
	if err != nil {
		return nil, fmt.Errorf("[comm.InitSender] Opening CRDT log file for writing failed with: %v", err)
	}
	sender.writeLog = write

	// Open log file descriptor for updating.
	upd, err := os.OpenFile(logFilePath, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("[comm.InitSender] Opening CRDT log file for updating failed with: %v", err)
	}
	sender.updLog = upd

	// Start brokering routine in background.
	go sender.BrokerMsgs()

	// Start sending routine in background.
	go sender.SendMsgs()

	// If we just started the application, perform an
	// initial run to check if log file contains elements.
	sender.msgInLog <- struct{}{}

	// Return this channel to pass to processes.
	return sender.inc, nil
}

// BrokerMsgs awaits a CRDT message to send to downstream
// replicas from one of the local processes on channel inc.
// It stores the message for sending in a dedicated CRDT log
// file and passes on a signal that a new message is available.
func (sender *Sender) BrokerMsgs() {

	for {
		// Receive CRDT payload to send to other replicas
		// on incoming channel.
		msg, ok := <-sender.inc
		if ok {

			// Lock mutex.
			sender.lock.Lock()

			// Set this replica's name as sending part.
			msg.Sender = sender.name

			// Send this replica's name on incVClock channel to
			// request an increment of its vector clock value.
			sender.incVClock <- sender.name

			// Wait for updated vector clock to be sent back
			// on other defined channel.
			msg.VClock = <-sender.updVClock

			// Serialize message to its wire representation
			// and add a trailing newline symbol.
			data := []byte(msg.String() + "\n")

			// Write it to message log file.
			_, err := sender.writeLog.Write(data)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("writing to CRDT log file failed with: %v", err))
				os.Exit(1)
			}

			// Save to stable storage.
			err = sender.writeLog.Sync()
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("syncing CRDT log file to stable storage failed with: %v", err))
				os.Exit(1)
			}

			// Unlock mutex.
			sender.lock.Unlock()

			// Indicate consecutive loop iterations
			// that a message is waiting in log.
			if len(sender.msgInLog) < 1 {
				sender.msgInLog <- struct{}{}
			}
		}
	}
}

// SendMsgs waits for a signal indicating that a message
// is waiting in the log file to be sent out and sends that
// to all downstream replicas.
func (sender *Sender) SendMsgs() {

	for {

		// Wait for signal that new message was written to
		// log file so that we can send it out.
		_, ok := <-sender.msgInLog
		if ok {

			// Lock mutex.
			sender.lock.Lock()

			// Most of the following commands are taking from
			// this stackoverflow answer describing a way to
			// pop the first line of a file and write back
			// the remaining parts:
			// http://stackoverflow.com/a/30948278
			info, err := sender.updLog.Stat()
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not get CRDT log file information: %v", err))
				os.Exit(1)
			}

			// Check if log file is empty and continue at next
			// for loop iteration if that is the case.
			if info.Size() == 0 {
				sender.lock.Unlock()
				continue
			}

			// Create a buffer of capacity of read file size.
			buf := bytes.NewBuffer(make([]byte, 0, info.Size()))

			// Reset position to beginning of file.
			_, err = sender.updLog.Seek(0, os.SEEK_SET)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not reset position in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Copy contents of log file to prepared buffer.
			_, err = io.Copy(buf, sender.updLog)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not copy CRDT log file contents to buffer: %v", err))
				os.Exit(1)
			}

			// Read oldest message from log file.
			payload, err := buf.ReadString('\n')
			if (err != nil) && (err != io.EOF) {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("error during extraction of first line in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Reset position to beginning of file.
			_, err = sender.updLog.Seek(0, os.SEEK_SET)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not reset position in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Unlock mutex.
			sender.lock.Unlock()

			// Remove trailing newline symbol from payload.
			payload = payload[:(len(payload) - 1)]

			// Parse stored wire message back into a Message struct.
			msg, err := Parse(payload)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("failed to parse stored sync message: %v", err))
				os.Exit(1)
			}

			// TODO: Parallelize this loop?
			for peer, addr := range sender.peers {

				// Connect to downstream replica.
				conn, err := ReliableConnect(peer, addr, sender.tlsConfig, sender.syncRetry)
				if err != nil {
					level.Error(sender.logger).Log("msg", fmt.Sprintf("could not connect to downstream replica %s: %v", peer, err))
					os.Exit(1)
				}

				// Send msg to downstream replica.
				err = ReliableSend(conn, msg, peer, addr, sender.tlsConfig, sender.syncTimeo, sender.syncRetry)
				conn.Close()
				if err != nil {
					level.Error(sender.logger).Log("msg", fmt.Sprintf("could not send downstream message to replica %s: %v", peer, err))
					os.Exit(1)
				}
			}

			// Lock mutex.
			sender.lock.Lock()

			// Retrieve file information.
			info, err = sender.updLog.Stat()
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not get CRDT log file information: %v", err))
				os.Exit(1)
			}

			// Create a buffer of capacity of read file size.
			buf = bytes.NewBuffer(make([]byte, 0, info.Size()))

			// Reset position to beginning of file.
			_, err = sender.updLog.Seek(0, os.SEEK_SET)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not reset position in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Copy contents of log file to prepared buffer.
			_, err = io.Copy(buf, sender.updLog)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not copy CRDT log file contents to buffer: %v", err))
				os.Exit(1)
			}

			// Read oldest message from log file.
			_, err = buf.ReadString('\n')
			if (err != nil) && (err != io.EOF) {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("error during extraction of first line in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Reset position to beginning of file.
			_, err = sender.updLog.Seek(0, os.SEEK_SET)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not reset position in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Copy reduced buffer contents back to beginning
			// of CRDT log file, effectively deleting the first line.
			newNumOfBytes, err := io.Copy(sender.updLog, buf)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("error during copying buffer contents back to CRDT log file: %v", err))
				os.Exit(1)
			}

			// Now, truncate log file size to exact amount
			// of bytes copied from buffer.
			err = sender.updLog.Truncate(newNumOfBytes)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not truncate CRDT log file: %v", err))
				os.Exit(1)
			}

			// Sync changes to stable storage.
			err = sender.updLog.Sync()
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("syncing CRDT log file to stable storage failed with: %v", err))
				os.Exit(1)
			}

			// Reset position to beginning of file.
			_, err = sender.updLog.Seek(0, os.SEEK_SET)
			if err != nil {
				level.Error(sender.logger).Log("msg", fmt.Sprintf("could not reset position in CRDT log file: %v", err))
				os.Exit(1)
			}

			// Unlock mutex.
			sender.lock.Unlock()

			// We do not know how many elements are waiting in the
			// log file. Therefore attempt to send next one and if
			// it does not exist, the loop iteration will abort.
			if len(sender.msgInLog) < 1 {
				sender.msgInLog <- struct{}{}
			}
		}
	}
}
