// Package storage implements the node's on-disk encrypted persistence:
// chain.enc, mempool.enc, and validator.key (spec §1 "OUT OF SCOPE ... the
// on-disk encrypted storage format" — specified only by the interface the
// core uses). Each file is a single NaCl secretbox-sealed blob: a random
// 24-byte nonce followed by the ciphertext, encrypted under a key derived
// once at node startup. Grounded on the teacher's ledger WAL/snapshot
// split (core/ledger.go NewLedger/OpenLedger), generalized from an
// append-only WAL to whole-file snapshot writes matching the spec's
// "persist chain" / "persist mempool" single-shot operations.
package storage

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/argh-chain/node/core"
)

const (
	chainFile     = "chain.enc"
	mempoolFile   = "mempool.enc"
	validatorFile = "validator.key"

	keySize   = 32
	nonceSize = 24
)

// Store persists chain/mempool/validator-key state under a data directory,
// sealing every file with the same symmetric key.
type Store struct {
	dir string
	key [keySize]byte
}

// Open prepares dir (creating it if absent) and returns a Store sealed
// under key, a 32-byte symmetric key typically derived from the
// operator-supplied passphrase or keystore at node startup.
func Open(dir string, key [keySize]byte) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, key: key}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// seal encrypts plaintext with a fresh random nonce and returns
// nonce||ciphertext.
func (s *Store) seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// open decrypts a nonce||ciphertext blob produced by seal.
func (s *Store) open(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	plaintext, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("decryption failed: wrong key or corrupted file")
	}
	return plaintext, nil
}

func (s *Store) writeSealed(name string, plaintext []byte) error {
	blob, err := s.seal(plaintext)
	if err != nil {
		return err
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, s.path(name))
}

func (s *Store) readSealed(name string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, err
	}
	return s.open(blob)
}

// chainSnapshot is the on-disk representation of the full chain.
type chainSnapshot struct {
	Blocks []*core.Block `json:"blocks"`
}

// SaveChain persists the full block list (spec §4.7 step 5 "Persist
// chain").
func (s *Store) SaveChain(blocks []*core.Block) error {
	raw, err := json.Marshal(chainSnapshot{Blocks: blocks})
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}
	return s.writeSealed(chainFile, raw)
}

// LoadChain reads the persisted chain, if any. It returns (nil, nil) when
// no chain file exists yet.
func (s *Store) LoadChain() ([]*core.Block, error) {
	raw, err := s.readSealed(chainFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snap chainSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode chain: %w", err)
	}
	return snap.Blocks, nil
}

// mempoolSnapshot is the on-disk representation of pending transactions.
type mempoolSnapshot struct {
	Transactions []*core.Transaction `json:"transactions"`
}

// SaveMempool persists the current pending transaction set.
func (s *Store) SaveMempool(txs []*core.Transaction) error {
	raw, err := json.Marshal(mempoolSnapshot{Transactions: txs})
	if err != nil {
		return fmt.Errorf("encode mempool: %w", err)
	}
	return s.writeSealed(mempoolFile, raw)
}

// LoadMempool reads the persisted mempool, if any.
func (s *Store) LoadMempool() ([]*core.Transaction, error) {
	raw, err := s.readSealed(mempoolFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snap mempoolSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode mempool: %w", err)
	}
	return snap.Transactions, nil
}

// SaveValidatorKey persists the node's raw Ed25519 private key bytes.
func (s *Store) SaveValidatorKey(priv []byte) error {
	return s.writeSealed(validatorFile, priv)
}

// LoadValidatorKey reads the persisted validator key, if any.
func (s *Store) LoadValidatorKey() ([]byte, error) {
	raw, err := s.readSealed(validatorFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}
