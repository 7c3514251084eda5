package p2p

// Node orchestrates the peer set: handshake, status reconciliation, paged
// sync, live block/tx gossip, equivocation checking, and heartbeats (spec
// §4.8). Grounded on the teacher's ctx.Done()-driven task style
// (core/consensus.go, core/network.go) translated from libp2p pubsub
// topics to one goroutine per TCP connection.

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/argh-chain/node/core"
)

// maxSyncPage is the paged-sync page size (spec §4.8 "Paged sync").
const maxSyncPage = 200

// dedupCap bounds the tx-gossip dedup set before it is cleared (spec
// §4.8 "TX gossip").
const dedupCap = 10_000

// Ledger is the subset of *core.Ledger that Node depends on, narrowed for
// testability.
type Ledger interface {
	Tip() *core.Block
	Height() int
	BlockAt(index uint64) *core.Block
	BlocksFrom(from uint64, limit int) []*core.Block
	AppendBlock(b *core.Block, validators core.ValidatorSet, p *core.Protocol, attempt int) error
	ReplaceTip(b *core.Block, validators core.ValidatorSet, p *core.Protocol, attempt int) error
}

// Node is one P2P participant.
type Node struct {
	NodeID     string
	ListenAddr string

	ledger     Ledger
	mempool    *core.Mempool
	validators core.ValidatorSet
	protocol   *core.Protocol
	equiv      *core.EquivocationRegistry

	mu          sync.Mutex
	peers       map[string]*Peer
	syncing     bool
	syncTarget  uint64
	bufferedBlk map[uint64]*core.Block

	dedupMu sync.Mutex
	dedup   map[string]struct{}

	log *logrus.Entry
}

// NewNode constructs a Node. If nodeID is empty, a random UUID is used
// (spec §4.8 handshake).
func NewNode(nodeID, listenAddr string, ledger Ledger, mempool *core.Mempool, validators core.ValidatorSet, protocol *core.Protocol, equiv *core.EquivocationRegistry, log *logrus.Entry) *Node {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Node{
		NodeID:      nodeID,
		ListenAddr:  listenAddr,
		ledger:      ledger,
		mempool:     mempool,
		validators:  validators,
		protocol:    protocol,
		equiv:       equiv,
		peers:       make(map[string]*Peer),
		bufferedBlk: make(map[uint64]*core.Block),
		dedup:       make(map[string]struct{}),
		log:         log.WithField("component", "p2p"),
	}
}

// Start runs the listener and background tasks until ctx is cancelled.
func (n *Node) Start(ctx context.Context, bootstrapPeers []string) error {
	ln, err := net.Listen("tcp", n.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.ListenAddr, err)
	}
	go n.acceptLoop(ctx, ln)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for _, addr := range bootstrapPeers {
		addr := addr
		go func() {
			if err := n.Dial(ctx, addr); err != nil {
				n.log.WithError(err).WithField("addr", addr).Warn("bootstrap dial failed")
			}
		}()
	}

	go n.heartbeatLoop(ctx)
	go n.gossipRebroadcastLoop(ctx)

	n.log.WithField("addr", n.ListenAddr).Info("p2p node started")
	return nil
}

func (n *Node) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.log.WithError(err).Warn("accept failed")
				continue
			}
		}
		go n.handleInbound(ctx, conn)
	}
}

// Dial connects to addr, performs the handshake, and starts the peer's
// listener task (spec §4.8 "Handshake").
func (n *Node) Dial(ctx context.Context, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	return n.handshake(ctx, conn, true)
}

func (n *Node) handleInbound(ctx context.Context, conn net.Conn) {
	if err := n.handshake(ctx, conn, false); err != nil {
		n.log.WithError(err).Warn("inbound handshake failed")
		_ = conn.Close()
	}
}

func (n *Node) handshake(ctx context.Context, conn net.Conn, initiator bool) error {
	reader := bufio.NewReader(conn)
	send := func(msg *Message) error { return WriteMessage(conn, msg) }

	if initiator {
		if err := send(&Message{Kind: KindHandshake, Handshake: &HandshakePayload{NodeID: n.NodeID}}); err != nil {
			return err
		}
	}
	msg, err := ReadMessage(reader)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if msg.Kind != KindHandshake || msg.Handshake == nil {
		return fmt.Errorf("expected handshake, got %s", msg.Kind)
	}
	remoteID := msg.Handshake.NodeID
	if remoteID == n.NodeID {
		_ = conn.Close()
		return fmt.Errorf("dropped self-loop connection")
	}
	if !initiator {
		if err := send(&Message{Kind: KindHandshake, Handshake: &HandshakePayload{NodeID: n.NodeID}}); err != nil {
			return err
		}
	}

	n.mu.Lock()
	if _, dup := n.peers[remoteID]; dup {
		n.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("dropped duplicate peer %s", remoteID)
	}
	peer := newPeer(remoteID, conn, reader, n.log)
	n.peers[remoteID] = peer
	n.mu.Unlock()

	tip := n.ledger.Tip()
	status := &StatusPayload{}
	if tip != nil {
		status.LatestIndex = tip.Index
		status.LatestHash = tip.Hash
	}
	if err := peer.Send(&Message{Kind: KindStatus, Status: status}); err != nil {
		n.dropPeer(remoteID)
		return err
	}

	go n.peerLoop(ctx, peer)
	return nil
}

func (n *Node) dropPeer(nodeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.peers[nodeID]; ok {
		p.Close()
		delete(n.peers, nodeID)
	}
}

func (n *Node) peerLoop(ctx context.Context, peer *Peer) {
	defer n.dropPeer(peer.NodeID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := peer.Receive()
		if err != nil {
			n.log.WithError(err).WithField("peer", peer.NodeID).Debug("peer read failed")
			return
		}
		n.dispatch(ctx, peer, msg)
	}
}

func (n *Node) dispatch(ctx context.Context, peer *Peer, msg *Message) {
	switch msg.Kind {
	case KindStatus:
		n.handleStatus(ctx, peer, msg.Status)
	case KindGetBlocks:
		n.handleGetBlocks(peer, msg.GetBlocks)
	case KindBlocks:
		n.handleBlocksPage(msg.Blocks)
	case KindBlock:
		n.handleLiveBlock(peer, msg.Block)
	case KindGetBlock:
		n.handleGetBlock(peer, msg.GetBlock)
	case KindSingleBlock:
		n.handleSingleBlock(msg.SingleBlock)
	case KindTx:
		n.handleTx(peer, msg.Tx)
	case KindPing:
		_ = peer.Send(&Message{Kind: KindPong})
	case KindPong:
		// heartbeat acknowledged; no action needed.
	}
}

// handleStatus implements spec §4.8 "Status reconciliation".
func (n *Node) handleStatus(ctx context.Context, peer *Peer, status *StatusPayload) {
	if status == nil {
		return
	}
	tip := n.ledger.Tip()
	localIndex, localHash := uint64(0), ""
	if tip != nil {
		localIndex, localHash = tip.Index, tip.Hash
	}
	switch {
	case status.LatestIndex == localIndex && status.LatestHash == localHash:
		return
	case status.LatestIndex > localIndex:
		n.mu.Lock()
		n.syncing = true
		n.syncTarget = status.LatestIndex
		n.mu.Unlock()
		_ = peer.Send(&Message{Kind: KindGetBlocks, GetBlocks: &GetBlocksPayload{From: localIndex + 1}})
	case status.LatestIndex < localIndex:
		return
	default: // same index, different hash: fork
		_ = peer.Send(&Message{Kind: KindGetBlock, GetBlock: &GetBlockPayload{Index: localIndex}})
	}
}

func (n *Node) handleGetBlocks(peer *Peer, req *GetBlocksPayload) {
	if req == nil {
		return
	}
	page := n.ledger.BlocksFrom(req.From, maxSyncPage)
	_ = peer.Send(&Message{Kind: KindBlocks, Blocks: &BlocksPayload{Data: page}})
}

func (n *Node) handleBlocksPage(page *BlocksPayload) {
	if page == nil {
		return
	}
	for _, b := range page.Data {
		n.appendSyncedBlock(b)
	}
	if len(page.Data) < maxSyncPage {
		n.completeSync()
	}
}

func (n *Node) appendSyncedBlock(b *core.Block) {
	tip := n.ledger.Tip()
	if tip == nil {
		return
	}
	if err := n.equiv.Check(b.ProducerID, b.Slot, b.Hash); err != nil {
		n.log.WithError(err).Warn("equivocation during sync")
		return
	}
	if err := n.ledger.AppendBlock(b, n.validators, n.protocol, 0); err != nil {
		n.log.WithError(err).WithField("index", b.Index).Warn("rejected synced block")
	}
}

// completeSync drains buffered live blocks that arrived during sync (spec
// §4.8 "Blocks that arrive as live block while syncing are buffered ...").
func (n *Node) completeSync() {
	n.mu.Lock()
	n.syncing = false
	buffered := n.bufferedBlk
	n.bufferedBlk = make(map[uint64]*core.Block)
	n.mu.Unlock()

	indices := make([]uint64, 0, len(buffered))
	for idx := range buffered {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	for _, idx := range indices {
		n.tryAppendLive(buffered[idx])
	}
}

func (n *Node) handleLiveBlock(peer *Peer, payload *BlockPayload) {
	if payload == nil || payload.Data == nil {
		return
	}
	b := payload.Data
	tip := n.ledger.Tip()
	if tip == nil {
		return
	}

	n.mu.Lock()
	syncing := n.syncing
	n.mu.Unlock()
	if syncing {
		n.mu.Lock()
		n.bufferedBlk[b.Index] = b
		n.mu.Unlock()
		return
	}

	if b.Index > tip.Index+1 {
		n.mu.Lock()
		n.syncing = true
		n.syncTarget = b.Index
		n.mu.Unlock()
		_ = peer.Send(&Message{Kind: KindGetBlocks, GetBlocks: &GetBlocksPayload{From: tip.Index + 1}})
		return
	}
	n.tryAppendLive(b)
}

func (n *Node) tryAppendLive(b *core.Block) {
	tip := n.ledger.Tip()
	if tip == nil || b.Index != tip.Index+1 {
		return
	}
	if err := n.equiv.Check(b.ProducerID, b.Slot, b.Hash); err != nil {
		n.log.WithError(err).Warn("equivocation on live block")
		return
	}
	if err := n.ledger.AppendBlock(b, n.validators, n.protocol, 0); err != nil {
		n.log.WithError(err).Warn("rejected live block")
		return
	}
	n.equiv.Prune(b.Slot)
	n.BroadcastBlock(b)
}

func (n *Node) handleGetBlock(peer *Peer, req *GetBlockPayload) {
	if req == nil {
		return
	}
	b := n.ledger.BlockAt(req.Index)
	_ = peer.Send(&Message{Kind: KindSingleBlock, SingleBlock: &BlockPayload{Data: b}})
}

// handleSingleBlock implements spec §4.8's "same-slot fork tie-break".
func (n *Node) handleSingleBlock(payload *BlockPayload) {
	if payload == nil || payload.Data == nil {
		return
	}
	incoming := payload.Data
	tip := n.ledger.Tip()
	if tip == nil || incoming.Index != tip.Index {
		return
	}
	if incoming.Hash >= tip.Hash {
		return // local wins or ties; keep it
	}
	if err := n.ledger.ReplaceTip(incoming, n.validators, n.protocol, 0); err != nil {
		n.log.WithError(err).Warn("fork tie-break replace failed")
	}
}

func (n *Node) handleTx(sender *Peer, payload *TxPayload) {
	if payload == nil || payload.Data == nil {
		return
	}
	tx := payload.Data
	if err := core.StructuralCheck(tx); err != nil {
		return
	}
	if n.seen(tx.TxID) {
		return
	}
	if !n.mempool.Add(tx) {
		return
	}
	n.fanOut(&Message{Kind: KindTx, Tx: payload}, sender)
}

// seen implements the dedup-by-txid gossip guard, capped at 10k entries
// (spec §4.8 "TX gossip").
func (n *Node) seen(txid string) bool {
	n.dedupMu.Lock()
	defer n.dedupMu.Unlock()
	if _, ok := n.dedup[txid]; ok {
		return true
	}
	if len(n.dedup) >= dedupCap {
		n.dedup = make(map[string]struct{})
	}
	n.dedup[txid] = struct{}{}
	return false
}

func (n *Node) fanOut(msg *Message, except *Peer) {
	n.mu.Lock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		if p == except {
			continue
		}
		peers = append(peers, p)
	}
	n.mu.Unlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.dropPeer(p.NodeID)
		}
	}
}

// BroadcastBlock implements core.Broadcaster.
func (n *Node) BroadcastBlock(b *core.Block) {
	n.fanOut(&Message{Kind: KindBlock, Block: &BlockPayload{Data: b}}, nil)
}

// BroadcastTx implements core.Broadcaster.
func (n *Node) BroadcastTx(tx *core.Transaction) {
	n.fanOut(&Message{Kind: KindTx, Tx: &TxPayload{Data: tx}}, nil)
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.fanOut(&Message{Kind: KindPing}, nil)
		}
	}
}

// gossipRebroadcastLoop periodically re-broadcasts mempool contents to
// cover startup/desync windows (spec §4.8 "TX gossip").
func (n *Node) gossipRebroadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tx := range n.mempool.All() {
				n.fanOut(&Message{Kind: KindTx, Tx: &TxPayload{Data: tx}}, nil)
			}
		}
	}
}

// PeerCount returns the number of currently connected peers.
func (n *Node) PeerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}
