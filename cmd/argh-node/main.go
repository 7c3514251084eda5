package main

// Grounded on the teacher's cmd/synnergy/main.go (rootCmd + subcommand
// builders, cobra.Command.Run closures), wired here to the node's actual
// lifecycle instead of mock testnet/token placeholders.

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/argh-chain/node/core"
	"github.com/argh-chain/node/oracleclient"
	"github.com/argh-chain/node/p2p"
	"github.com/argh-chain/node/pkg/config"
	"github.com/argh-chain/node/storage"
)

func main() {
	rootCmd := &cobra.Command{Use: "argh-node"}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(keygenCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a new validator Ed25519 keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			addr := core.AddressFromEd25519(pub)
			fmt.Printf("address: %s\npublic_key: %s\n", addr.Hex(), hex.EncodeToString(pub))
			if out == "" {
				fmt.Printf("private_key: %s\n", hex.EncodeToString(priv))
				return nil
			}
			return os.WriteFile(out, priv, 0o600)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the raw private key to this file instead of stdout")
	return cmd
}

// genesisFile is the on-disk shape of the genesis parameter file (spec §1
// "genesis parameter file loading" — an out-of-scope external collaborator,
// parsed here only far enough to construct core.Protocol and the
// validator set).
type genesisFile struct {
	Protocol   core.Protocol     `yaml:"protocol"`
	Validators map[string]string `yaml:"validators"` // address -> hex Ed25519 pubkey
}

func runCmd() *cobra.Command {
	var configName, genesisPath, keyPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configName, genesisPath, keyPath)
		},
	}
	cmd.Flags().StringVar(&configName, "config", "argh-node", "config file name (without extension)")
	cmd.Flags().StringVar(&genesisPath, "genesis", "genesis.yaml", "genesis parameter file")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the raw validator private key (generated via keygen)")
	return cmd
}

func run(configName, genesisPath, keyPath string) error {
	cfg, err := config.Load(configName, ".", "/etc/argh-node")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.Logging.Level)

	genesis, validatorKeys, err := loadGenesis(genesisPath)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	validators := core.NewStaticValidatorSet(validatorKeys)

	priv, err := loadOrCreateKey(keyPath)
	if err != nil {
		return fmt.Errorf("load validator key: %w", err)
	}
	self := core.AddressFromEd25519(priv.Public().(ed25519.PublicKey)).Hex()

	var storeKey [32]byte
	copy(storeKey[:], []byte(config.NodeAddress()+self)) // placeholder derivation; real bootstrap supplies a passphrase
	store, err := storage.Open(cfg.Storage.DataDir, storeKey)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	ledger := core.NewLedger(log.WithField("node", self))
	persistedBlocks, err := store.LoadChain()
	if err != nil {
		return fmt.Errorf("load persisted chain: %w", err)
	}
	if len(persistedBlocks) == 0 {
		genesisBlock, err := core.NewGenesisBlock(&genesis.Protocol)
		if err != nil {
			return fmt.Errorf("build genesis block: %w", err)
		}
		if err := ledger.AppendGenesis(genesisBlock); err != nil {
			return fmt.Errorf("install genesis: %w", err)
		}
	} else {
		if err := ledger.AppendGenesis(persistedBlocks[0]); err != nil {
			return fmt.Errorf("install persisted genesis: %w", err)
		}
		for _, b := range persistedBlocks[1:] {
			if err := ledger.AppendBlock(b, validators, &genesis.Protocol, 0); err != nil {
				return fmt.Errorf("replay persisted block %d: %w", b.Index, err)
			}
		}
	}

	mempool := core.NewMempool()
	if persisted, err := store.LoadMempool(); err == nil {
		for _, tx := range persisted {
			mempool.Add(tx)
		}
	}

	equiv := core.NewEquivocationRegistry(log)

	oracle := oracleclient.New(cfg.Oracle.URL, cfg.Oracle.Timeout, genesis.Protocol.Oracle, log)

	node := p2p.NewNode(self, cfg.P2P.ListenAddr, ledger, mempool, validators, &genesis.Protocol, equiv, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := node.Start(ctx, cfg.P2P.BootstrapPeers); err != nil {
		return fmt.Errorf("start p2p: %w", err)
	}

	loop := core.NewSlotLoop(core.SlotLoopConfig{
		Self:          self,
		Key:           priv,
		SlotDuration:  cfg.Consensus.SlotDuration,
		SlotTolerance: cfg.Consensus.SlotTolerance,
		PropagateWait: cfg.Consensus.BlockPropagationWait,
	}, ledger, mempool, validators, &genesis.Protocol, oracle, node, equiv, log)
	go loop.Run(ctx)

	go periodicPersist(ctx, ledger, mempool, store, log)

	log.WithField("address", self).Info("argh-node running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()
	return persistAll(ledger, mempool, store)
}

func periodicPersist(ctx context.Context, ledger *core.Ledger, mempool *core.Mempool, store *storage.Store, log *logrus.Entry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := persistAll(ledger, mempool, store); err != nil {
				log.WithError(err).Warn("periodic persist failed")
			}
		}
	}
}

func persistAll(ledger *core.Ledger, mempool *core.Mempool, store *storage.Store) error {
	blocks := make([]*core.Block, 0, ledger.Height())
	for i := 0; i < ledger.Height(); i++ {
		blocks = append(blocks, ledger.BlockAt(uint64(i)))
	}
	if err := store.SaveChain(blocks); err != nil {
		return err
	}
	return store.SaveMempool(mempool.All())
}

func loadGenesis(path string) (*genesisFile, map[string]ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var g genesisFile
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, nil, fmt.Errorf("parse genesis file: %w", err)
	}
	keys := make(map[string]ed25519.PublicKey, len(g.Validators))
	for addr, hexKey := range g.Validators {
		pub, err := hex.DecodeString(hexKey)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("invalid validator pubkey for %s", addr)
		}
		keys[addr] = ed25519.PublicKey(pub)
	}
	return &g, keys, nil
}

func loadOrCreateKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("validator key file has unexpected length %d", len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func newLogger(level string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logrus.NewEntry(logger)
}
