// swapd is the daemon driving Alice's side of a single BTC/XMR swap per
// spec.md, wiring the chain wallets, the peer transport, and the swap
// database into a running swap/alice.Machine. Grounded on cmd/lnd's
// composition root: parse flags, stand up logging, open the database,
// construct the collaborators, run.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli"

	"github.com/xmrswap/swapd/chain/btc"
	"github.com/xmrswap/swapd/chain/xmr"
	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/monero"
	"github.com/xmrswap/swapd/net/peer"
	"github.com/xmrswap/swapd/swap/alice"
	"github.com/xmrswap/swapd/swapdb"
)

func main() {
	app := cli.NewApp()
	app.Name = "swapd"
	app.Usage = "BTC/XMR atomic swap daemon (Alice side)"
	app.Commands = []cli.Command{
		runCommand,
		statusCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[swapd] %v\n", err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "start the daemon and listen for an incoming swap handshake",
	Action: func(_ *cli.Context) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func run(cfg *Config) error {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := initLogRotator(cfg.LogFile(), cfg.MaxLogFileSize, cfg.MaxLogFiles); err != nil {
		return err
	}
	setLogLevels(cfg.LogLevel)

	env, err := cfg.Environment()
	if err != nil {
		return err
	}

	store, err := swapdb.Open(filepath.Join(cfg.DataDir))
	if err != nil {
		return common.NewSwapError(common.Fatal, "", fmt.Errorf("open swap database: %w", err))
	}
	defer store.Close()

	btcParams, err := btc.ChainParams(env)
	if err != nil {
		return err
	}

	var wallet btc.Wallet
	if cfg.BitcoinRPCHost == "" {
		wallet = btc.NewFakeWallet(0)
	} else {
		wallet, err = btc.NewRPCWallet(btc.RPCConfig{
			Host:   cfg.BitcoinRPCHost,
			User:   cfg.BitcoinRPCUser,
			Pass:   cfg.BitcoinRPCPass,
			Params: btcParams,
		})
		if err != nil {
			return common.NewSwapError(common.ChainIo, "", err)
		}
	}

	var xmrWallet xmr.Wallet
	if cfg.MoneroWalletRPC == "" {
		xmrWallet = xmr.NewFakeWallet()
	} else {
		xmrWallet = xmr.NewRPCClient(cfg.MoneroWalletRPC)
	}

	resumePendingSwaps(context.Background(), store, wallet, xmrWallet, cfg.Params())

	return acceptLoop(cfg, store, wallet, xmrWallet)
}

// resumePendingSwaps re-drives every swap the store considers
// non-terminal, per spec.md §5's crash-resume requirement. A swap
// that's mid-handshake (no Transport to resume it over, since the
// connection died with the process) is left for the counterparty to
// reconnect and re-trigger via acceptLoop; swaps already past the lock
// point make further progress purely from chain observation and so can
// resume immediately with a nil Transport.
func resumePendingSwaps(ctx context.Context, store *swapdb.Store, w btc.Wallet, x xmr.Wallet, params common.ExecutionParams) {
	pending, err := store.PendingSwaps()
	if err != nil {
		swpdLog.Errorf("scan pending swaps: %v", err)
		return
	}
	for _, s := range pending {
		if s.Phase == alice.PhaseStarted {
			swpdLog.Infof("swap_id=%s phase=%s awaiting counterparty reconnect", s.ID, s.Phase)
			continue
		}
		swpdLog.Infof("swap_id=%s phase=%s resuming after restart", s.ID, s.Phase)
		m := alice.NewMachine(alice.Config{
			BTCWallet: w,
			Observer:  w,
			XMRWallet: x,
			Store:     store,
			Params:    params,
		})
		go func(s *alice.Swap) {
			if _, err := m.Run(ctx, s); err != nil {
				swpdLog.Errorf("swap_id=%s resume failed: %v", s.ID, err)
			}
		}(s)
	}
}

// acceptLoop listens for Bob's incoming connection and, for each one,
// creates a fresh swap and drives it to completion. Grounded on
// server.go's listener-accept-goroutine shape, reduced to this
// daemon's single long-lived peer instead of a connection pool.
func acceptLoop(cfg *Config, store *swapdb.Store, w btc.Wallet, x xmr.Wallet) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return common.NewSwapError(common.Fatal, "", fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err))
	}
	defer ln.Close()
	swpdLog.Infof("listening for swap handshakes on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		swpdLog.Infof("shutting down")
		ln.Close()
	}()

	env, err := cfg.Environment()
	if err != nil {
		return err
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-sigCh:
				return nil
			default:
				return common.NewSwapError(common.Fatal, "", fmt.Errorf("accept: %w", err))
			}
		}

		go handleConn(cfg, env, conn, store, w, x)
	}
}

func handleConn(cfg *Config, env common.Environment, conn net.Conn, store *swapdb.Store, w btc.Wallet, x xmr.Wallet) {
	defer conn.Close()

	transport := peer.NewConn(conn)

	redeemAddr, err := w.NewAddress(context.Background())
	if err != nil {
		swpdLog.Errorf("derive redeem address: %v", err)
		return
	}
	punishAddr, err := w.NewAddress(context.Background())
	if err != nil {
		swpdLog.Errorf("derive punish address: %v", err)
		return
	}

	s, err := alice.NewSwap(alice.NewSwapParams{
		Env:             env,
		BTCAmount:       common.BitcoinAmount(cfg.BTCAmountSats),
		XMRAmount:       common.MoneroAmountFromXMR(cfg.XMRAmountXMR),
		CancelTimelock:  cfg.BitcoinCancelTimelock,
		PunishTimelock:  cfg.BitcoinPunishTimelock,
		RedeemAddress:   redeemAddr,
		PunishAddress:   punishAddr,
		XMRSweepAddress: monero.Address(cfg.MoneroSweepAddress),
	})
	if err != nil {
		swpdLog.Errorf("create swap: %v", err)
		return
	}

	swpdLog.Infof("swap_id=%s accepted connection from %s", s.ID, conn.RemoteAddr())

	m := alice.NewMachine(alice.Config{
		BTCWallet: w,
		Observer:  w,
		XMRWallet: x,
		Transport: transport,
		Store:     store,
		Params:    cfg.Params(),
	})

	final, err := m.Run(context.Background(), s)
	if err != nil {
		swpdLog.Errorf("swap_id=%s run failed: %v", s.ID, err)
		return
	}
	swpdLog.Infof("swap_id=%s finished in phase=%s", final.ID, final.Phase)
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "show the state of one or all swaps in the database",
	ArgsUsage: "[swap_id]",
	Action: func(ctx *cli.Context) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		store, err := swapdb.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		if id := ctx.Args().First(); id != "" {
			swapID, err := common.ParseSwapID(id)
			if err != nil {
				return err
			}
			s, err := store.Get(swapID)
			if err != nil {
				return err
			}
			printSwap(s)
			return nil
		}

		swaps, err := store.ScanSwaps()
		if err != nil {
			return err
		}
		for _, s := range swaps {
			printSwap(s)
		}
		return nil
	},
}

func printSwap(s *alice.Swap) {
	fmt.Printf("%s  %-24s btc=%d xmr=%d\n", s.ID, s.Phase, s.BTCAmount, s.XMRAmount)
}
