package comm

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"io/ioutil"
	"path/filepath"

	"github.com/egisj/Dotted-Version-Vectors/crdt"
	"github.com/stretchr/testify/assert"
)

// TestTriggerMsgApplier executes a white-box unit
// test on implemented TriggerMsgApplier() function.
func TestTriggerMsgApplier(t *testing.T) {

	recv := &Receiver{
		lock:     &sync.Mutex{},
		name:     "replica-1",
		msgInLog: make(chan struct{}, 1),
		shutdown: make(chan struct{}, 3),
		wg:       &sync.WaitGroup{},
	}

	recv.wg.Add(1)
	go recv.TriggerMsgApplier()

	select {
	case <-recv.msgInLog:
	case <-time.After(7 * time.Second):
		t.Fatalf("[comm.TestTriggerMsgApplier] Expected a trigger signal within 7 seconds but received none\n")
	}

	recv.shutdown <- struct{}{}
	recv.wg.Wait()
}

// TestStoreIncMsgs executes a white-box unit test
// on implemented StoreIncMsgs() function, feeding it
// a plain-text sync message over a loopback connection.
func TestStoreIncMsgs(t *testing.T) {

	dir, err := ioutil.TempDir("", "TestStoreIncMsgs-")
	assert.Nilf(t, err, "failed to create temporary directory: %v", err)
	defer os.RemoveAll(dir)

	tmpLogFile := filepath.Join(dir, "log")

	write, err := os.OpenFile(tmpLogFile, (os.O_CREATE | os.O_WRONLY | os.O_APPEND), 0600)
	assert.Nilf(t, err, "failed to open temporary log file for writing: %v", err)

	recv := &Receiver{
		lock:     &sync.Mutex{},
		name:     "replica-1",
		msgInLog: make(chan struct{}, 1),
		writeLog: write,
	}

	client, server := net.Pipe()

	go func() {
		recv.StoreIncMsgs(server)
	}()

	w := bufio.NewWriter(client)
	_, err = w.WriteString("> ping <\r\n")
	assert.Nilf(t, err, "expected writing ping not to fail but received: %v", err)
	assert.Nilf(t, w.Flush(), "expected flushing ping not to fail\n")

	_, err = w.WriteString("replica-a|replica-1:1|put key=k value=v\r\n")
	assert.Nilf(t, err, "expected writing sync message not to fail but received: %v", err)
	assert.Nilf(t, w.Flush(), "expected flushing sync message not to fail\n")

	client.Close()

	select {
	case <-recv.msgInLog:
	case <-time.After(3 * time.Second):
		t.Fatalf("[comm.TestStoreIncMsgs] Expected a msgInLog signal but received none\n")
	}

	content, err := ioutil.ReadFile(tmpLogFile)
	assert.Nilf(t, err, "expected nil error reading log file but received: %v", err)
	assert.Equalf(t, "replica-a|replica-1:1|put key=k value=v\n", string(content), "expected stored sync message to match what was sent but found: %q", string(content))
}

// TestApplyStoredMsgs executes a white-box unit
// test on implemented ApplyStoredMsgs() function.
func TestApplyStoredMsgs(t *testing.T) {

	dir, err := ioutil.TempDir("", "TestApplyStoredMsgs-")
	assert.Nilf(t, err, "failed to create temporary directory: %v", err)
	defer os.RemoveAll(dir)

	tmpLogFile := filepath.Join(dir, "log")
	tmpVClockFile := filepath.Join(dir, "vclock")

	clk, err := crdt.Update(crdt.NewClock("v"), "replica-a")
	assert.Nilf(t, err, "expected building test clock not to fail but received: %v", err)

	op := &crdt.ClockOp{Key: "k", Clock: clk}
	logLine := fmt.Sprintf("replica-a|replica-a:1|%s\n", op.String())

	err = ioutil.WriteFile(tmpLogFile, []byte(logLine), 0600)
	assert.Nilf(t, err, "expected writing test content to log file not to fail but received: %v", err)

	write, err := os.OpenFile(tmpLogFile, (os.O_CREATE | os.O_WRONLY | os.O_APPEND), 0600)
	assert.Nilf(t, err, "failed to open temporary log file for writing: %v", err)

	upd, err := os.OpenFile(tmpLogFile, os.O_RDWR, 0600)
	assert.Nilf(t, err, "failed to open temporary log file for updating: %v", err)

	vclockLog, err := os.OpenFile(tmpVClockFile, (os.O_CREATE | os.O_RDWR), 0600)
	assert.Nilf(t, err, "failed to open temporary vector clock file: %v", err)

	peers := []string{"replica-a", "replica-b"}

	recv := &Receiver{
		lock:             &sync.Mutex{},
		name:             "replica-1",
		msgInLog:         make(chan struct{}, 1),
		writeLog:         write,
		updLog:           upd,
		vclock:           make(map[string]int),
		vclockLog:        vclockLog,
		shutdown:         make(chan struct{}, 3),
		applyCRDTUpdChan: make(chan *crdt.ClockOp),
		doneCRDTUpdChan:  make(chan struct{}),
		peers:            peers,
		wg:               &sync.WaitGroup{},
	}

	for _, peer := range peers {
		recv.vclock[peer] = 0
	}
	recv.vclock[recv.name] = 0

	recv.wg.Add(1)
	go recv.ApplyStoredMsgs()

	recv.msgInLog <- struct{}{}

	applied, ok := <-recv.applyCRDTUpdChan
	assert.Equalf(t, true, ok, "expected waiting for payload on channel to succeed but received: %v", ok)
	assert.Equalf(t, "k", applied.Key, "expected applied clock op to carry the stored key but found: %q", applied.Key)
	assert.Equalf(t, op.String(), applied.String(), "expected applied clock op to match what was stored but found: %q", applied.String())

	recv.doneCRDTUpdChan <- struct{}{}

	recv.shutdown <- struct{}{}
	recv.wg.Wait()
}
