package p2p

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// drainTimeout bounds how long a single outbound send may block before the
// peer is considered dead (spec §4.8 "Failure handling").
const drainTimeout = 3 * time.Second

// heartbeatInterval is how often an idle connection receives a ping (spec
// §4.8).
const heartbeatInterval = 10 * time.Second

// Peer wraps one TCP connection to a remote node. Writes are serialized
// through a mutex since the gossip, sync, and heartbeat tasks may all write
// concurrently.
type Peer struct {
	NodeID string
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	closed bool

	log *logrus.Entry
}

func newPeer(nodeID string, conn net.Conn, reader *bufio.Reader, log *logrus.Entry) *Peer {
	return &Peer{
		NodeID: nodeID,
		conn:   conn,
		reader: reader,
		log:    log.WithField("peer", nodeID),
	}
}

// Send writes msg to the peer with a bounded drain timeout. Any I/O error
// closes the peer (spec §4.8: "any I/O error on a peer writer drops the
// peer").
func (p *Peer) Send(msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(drainTimeout))
	if err := WriteMessage(p.conn, msg); err != nil {
		p.closeLocked()
		return err
	}
	return nil
}

// Receive blocks for the next framed message from the peer.
func (p *Peer) Receive() (*Message, error) {
	return ReadMessage(p.reader)
}

// Close terminates the underlying connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Peer) closeLocked() {
	if p.closed {
		return
	}
	p.closed = true
	_ = p.conn.Close()
}

func (p *Peer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var errPeerClosed = peerClosedError{}

type peerClosedError struct{}

func (peerClosedError) Error() string { return "p2p: peer connection closed" }
