package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/xmrswap/swapd/common"
)

const (
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "swapd.log"
	defaultMaxLogFileSize = 10
	defaultMaxLogFiles    = 3

	defaultListenAddr    = "127.0.0.1:13210"
	defaultBitcoinRPC    = "127.0.0.1:18443"
	defaultMoneroWallet  = "http://127.0.0.1:18084/json_rpc"
)

// Config is the daemon's complete runtime configuration, parsed from
// the command line and, if present, a config file. Grounded on
// routerrpc.Config's struct-tag shape for individual fields; the
// top-level composition (one flat struct, no config-file subsystem
// split) matches what spec.md §6 actually calls for: a handful of
// execution parameters and connection endpoints, not a multi-server
// daemon's worth of subsystem toggles.
type Config struct {
	Network string `long:"network" description:"network to run on" choice:"mainnet" choice:"testnet" choice:"stagenet" choice:"regtest"`

	DataDir string `long:"datadir" description:"directory to store swap state in"`
	LogDir  string `long:"logdir" description:"directory to log to"`
	LogLevel string `long:"loglevel" description:"logging level for all subsystems"`
	MaxLogFileSize int `long:"maxlogfilesize" description:"maximum log file size in KB before rotation"`
	MaxLogFiles    int `long:"maxlogfiles" description:"maximum number of rotated log files to keep"`

	ListenAddr string `long:"listenaddr" description:"address to accept counterparty connections on"`

	BitcoinRPCHost string `long:"bitcoin.rpchost" description:"bitcoind RPC host:port"`
	BitcoinRPCUser string `long:"bitcoin.rpcuser" description:"bitcoind RPC username"`
	BitcoinRPCPass string `long:"bitcoin.rpcpass" description:"bitcoind RPC password"`

	MoneroWalletRPC string `long:"monero.walletrpc" description:"monero-wallet-rpc endpoint"`
	MoneroSweepAddress string `long:"monero.sweepaddress" description:"Alice's own monero address to receive recovered funds"`

	BTCAmountSats int64  `long:"btcamount" description:"btc_amount of the swap this instance will accept, in satoshis"`
	XMRAmountXMR  float64 `long:"xmramount" description:"xmr_amount of the swap this instance will accept, in XMR"`

	BitcoinFinalityConfirmations uint32 `long:"bitcoinfinalityconfirmations" description:"confirmations required before tx_lock is considered final"`
	BitcoinCancelTimelock        uint32 `long:"bitcoincanceltimelock" description:"relative locktime, in blocks, until tx_cancel is spendable"`
	BitcoinPunishTimelock        uint32 `long:"bitcoinpunishtimelock" description:"relative locktime, in blocks from tx_cancel, until tx_punish is spendable"`
	BobTimeToActMinutes          uint32 `long:"bobtimetoact" description:"minutes alice waits for tx_lock to appear before safely aborting"`
}

// DefaultConfig returns the daemon's default configuration for a
// regtest developer setup, mirroring the values spec.md §8's
// end-to-end scenarios assume.
func DefaultConfig() Config {
	return Config{
		Network:        "regtest",
		LogLevel:       defaultLogLevel,
		MaxLogFileSize: defaultMaxLogFileSize,
		MaxLogFiles:    defaultMaxLogFiles,
		ListenAddr:     defaultListenAddr,
		BitcoinRPCHost: defaultBitcoinRPC,
		MoneroWalletRPC: defaultMoneroWallet,

		BitcoinFinalityConfirmations: 1,
		BitcoinCancelTimelock:        12,
		BitcoinPunishTimelock:        24,
		BobTimeToActMinutes:          30,
	}
}

// LoadConfig parses command-line flags over DefaultConfig's values and
// validates the result. Grounded on daemon.LndMain's
// flags.NewParser(cfg, flags.Default) idiom.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		appDir, err := defaultAppDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = filepath.Join(appDir, defaultDataDirname, cfg.Network)
	}
	if cfg.LogDir == "" {
		appDir, err := defaultAppDir()
		if err != nil {
			return nil, err
		}
		cfg.LogDir = filepath.Join(appDir, defaultLogDirname, cfg.Network)
	}

	if err := cfg.Params().Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution params: %w", err)
	}

	return &cfg, nil
}

// Params derives the common.ExecutionParams the swap machine runs
// against from the parsed flags.
func (c *Config) Params() common.ExecutionParams {
	return common.ExecutionParams{
		BitcoinFinalityConfirmations: c.BitcoinFinalityConfirmations,
		BitcoinCancelTimelock:        c.BitcoinCancelTimelock,
		BitcoinPunishTimelock:        c.BitcoinPunishTimelock,
		BobTimeToAct:                 time.Duration(c.BobTimeToActMinutes) * time.Minute,
		MoneroFinalityConfirmations:  10,
	}
}

// Environment parses the configured network into a common.Environment.
func (c *Config) Environment() (common.Environment, error) {
	return common.ParseEnvironment(c.Network)
}

// LogFile returns the path the log rotator writes to.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

func defaultAppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".swapd"), nil
}
