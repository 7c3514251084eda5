// Package config loads runtime settings for an argh-chain node: listen
// address, bootstrap peers, data directory, oracle URL and slot timing
// overrides. Loading the genesis parameter file itself, and validator
// keystore bootstrap, are external collaborators (spec §1) and are not
// the concern of this package.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/argh-chain/node/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Node is the unified runtime configuration for an argh-chain node.
type Node struct {
	P2P struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		NodesFile      string   `mapstructure:"nodes_file" json:"nodes_file"`
	} `mapstructure:"p2p" json:"p2p"`

	Storage struct {
		DataDir string `mapstructure:"data_dir" json:"data_dir"`
	} `mapstructure:"storage" json:"storage"`

	Oracle struct {
		URL     string        `mapstructure:"url" json:"url"`
		Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	} `mapstructure:"oracle" json:"oracle"`

	Consensus struct {
		SlotDuration         time.Duration `mapstructure:"slot_duration" json:"slot_duration"`
		SlotTolerance        time.Duration `mapstructure:"slot_tolerance" json:"slot_tolerance"`
		BlockPropagationWait time.Duration `mapstructure:"block_propagation_wait" json:"block_propagation_wait"`
	} `mapstructure:"consensus" json:"consensus"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Node

// Load reads `<name>.yaml` from the given search paths, merges `.env`
// (primarily NODE_ADDRESS, per spec §6) and environment variable overrides,
// and returns the populated Node config.
func Load(name string, searchPaths ...string) (*Node, error) {
	_ = godotenv.Load() // .env is optional; NODE_ADDRESS may also come from the OS env

	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	for _, p := range searchPaths {
		viper.AddConfigPath(p)
	}
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load node config")
		}
	}
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal node config")
	}
	return &AppConfig, nil
}

func setDefaults() {
	viper.SetDefault("p2p.listen_addr", "0.0.0.0:7071")
	viper.SetDefault("p2p.nodes_file", "nodes.json")
	viper.SetDefault("storage.data_dir", "./data")
	viper.SetDefault("oracle.timeout", 5*time.Second)
	viper.SetDefault("consensus.slot_duration", 4*time.Second)
	viper.SetDefault("consensus.slot_tolerance", 1*time.Second)
	viper.SetDefault("consensus.block_propagation_wait", 500*time.Millisecond)
	viper.SetDefault("logging.level", "info")
}

// NodeAddress returns the NODE_ADDRESS value loaded from the environment
// (set directly, or via .env per spec §6).
func NodeAddress() string {
	return utils.EnvOrDefault("NODE_ADDRESS", "")
}
