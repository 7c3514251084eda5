package core

import (
	"strings"
	"testing"
)

func sampleTransfer() *Transaction {
	amt, _ := ParseAmount("10.00000000")
	nonce := uint64(3)
	return &Transaction{
		Action:  ActionTransfer,
		Asset:   "ARGH",
		Amount:  amt,
		To:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Nonce:   &nonce,
		ChainID: "argh-1",
	}
}

func TestSigningFormKeyOrderAndTxidExclusion(t *testing.T) {
	tx := sampleTransfer()
	form, err := SigningForm(tx)
	if err != nil {
		t.Fatalf("SigningForm failed: %v", err)
	}
	s := string(form)
	if strings.Contains(s, `"txid"`) {
		t.Fatalf("signing form must never include txid, got %s", s)
	}
	wantOrder := []string{`"action"`, `"asset"`, `"amount"`, `"to"`, `"nonce"`, `"chainId"`}
	last := -1
	for _, key := range wantOrder {
		idx := strings.Index(s, key)
		if idx < 0 {
			t.Fatalf("missing key %s in signing form %s", key, s)
		}
		if idx < last {
			t.Fatalf("key %s out of order in signing form %s", key, s)
		}
		last = idx
		if count := strings.Count(s, key); count != 1 {
			t.Fatalf("expected key %s to appear exactly once in signing form, got %d: %s", key, count, s)
		}
	}
}

func TestSigningFormDeterministic(t *testing.T) {
	tx1 := sampleTransfer()
	tx2 := sampleTransfer()
	f1, err := SigningForm(tx1)
	if err != nil {
		t.Fatalf("SigningForm tx1: %v", err)
	}
	f2, err := SigningForm(tx2)
	if err != nil {
		t.Fatalf("SigningForm tx2: %v", err)
	}
	if string(f1) != string(f2) {
		t.Fatalf("expected identical signing forms, got %s vs %s", f1, f2)
	}
}

func TestConsensusFormSortsKeys(t *testing.T) {
	tx := sampleTransfer()
	form, err := ConsensusForm(tx)
	if err != nil {
		t.Fatalf("ConsensusForm failed: %v", err)
	}
	s := string(form)
	// lexicographic: action < amount < asset < chainId < nonce < to
	if strings.Index(s, `"action"`) > strings.Index(s, `"amount"`) {
		t.Fatalf("expected action before amount in sorted form: %s", s)
	}
	if strings.Index(s, `"chainId"`) > strings.Index(s, `"nonce"`) {
		t.Fatalf("expected chainId before nonce in sorted form: %s", s)
	}
}

func TestComputeTxIDStable(t *testing.T) {
	tx := sampleTransfer()
	id1, err := ComputeTxID(tx)
	if err != nil {
		t.Fatalf("ComputeTxID failed: %v", err)
	}
	id2, err := ComputeTxID(tx)
	if err != nil {
		t.Fatalf("ComputeTxID failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected stable txid, got %s vs %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(id1))
	}
}

func TestSortedJSONNestedOrdering(t *testing.T) {
	v := map[string]interface{}{
		"z": 1,
		"a": map[string]interface{}{"y": 2, "b": 3},
	}
	out, err := SortedJSON(v)
	if err != nil {
		t.Fatalf("SortedJSON failed: %v", err)
	}
	want := `{"a":{"b":3,"y":2},"z":1}`
	if string(out) != want {
		t.Fatalf("got %s want %s", out, want)
	}
}
