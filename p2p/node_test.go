package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/argh-chain/node/core"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func newTestNode(t *testing.T, addr string) *Node {
	t.Helper()
	p := &core.Protocol{ChainID: "argh-test", NativeAsset: "ARGH"}
	genesis, err := core.NewGenesisBlock(p)
	if err != nil {
		t.Fatalf("NewGenesisBlock failed: %v", err)
	}
	ledger := core.NewLedger(logrus.NewEntry(logrus.New()))
	if err := ledger.AppendGenesis(genesis); err != nil {
		t.Fatalf("AppendGenesis failed: %v", err)
	}
	validators := core.NewStaticValidatorSet(nil)
	equiv := core.NewEquivocationRegistry(nil)
	return NewNode("", addr, ledger, core.NewMempool(), validators, p, equiv, nil)
}

func waitForPeerCount(t *testing.T, n *Node, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.PeerCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for peer count %d, got %d", want, n.PeerCount())
}

func TestTwoNodesHandshakeAndGossipTx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrA := freePort(t)
	addrB := freePort(t)

	nodeA := newTestNode(t, addrA)
	nodeB := newTestNode(t, addrB)

	if err := nodeA.Start(ctx, nil); err != nil {
		t.Fatalf("start node A: %v", err)
	}
	if err := nodeB.Start(ctx, []string{addrA}); err != nil {
		t.Fatalf("start node B: %v", err)
	}

	waitForPeerCount(t, nodeA, 1)
	waitForPeerCount(t, nodeB, 1)

	amt, _ := core.ParseAmount("1")
	tx := &core.Transaction{Action: core.ActionTransfer, Asset: "ARGH", Amount: amt, To: "0xbob", TxID: "gossip-1"}
	nodeB.BroadcastTx(tx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := nodeA.mempool.Get("gossip-1"); ok && got.TxID == "gossip-1" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected node A mempool to receive gossiped tx")
}

func TestDialRejectsSelfLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := freePort(t)
	node := newTestNode(t, addr)
	node.NodeID = "fixed-id"
	if err := node.Start(ctx, nil); err != nil {
		t.Fatalf("start node: %v", err)
	}

	if err := node.Dial(ctx, addr); err == nil {
		t.Fatalf("expected self-dial to be rejected")
	}
	waitForPeerCount(t, node, 0)
}
