package btc

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrswap/swapd/common"
)

// RPCConfig names the bitcoind JSON-RPC endpoint a production Wallet
// talks to. Grounded on chainregistry.go's btcrpcclient.ConnConfig
// fields, narrowed to HTTP long-poll mode (no websocket notifications:
// ChainObserver is poll-driven by design, see observer.go).
type RPCConfig struct {
	Host   string
	User   string
	Pass   string
	Params *chaincfg.Params

	// DisableTLS should only be set for a local regtest/testnet node
	// reached over loopback.
	DisableTLS bool
}

// RPCWallet implements Wallet against a single bitcoind instance,
// using its JSON-RPC wallet methods for NewAddress/Balance and its
// node methods (via the embedded ChainObserver) for chain queries.
// Grounded on chainregistry.go's btcd RPC wiring, adapted from
// websocket-notification mode to the plain HTTP long-poll mode
// PollingObserver expects.
type RPCWallet struct {
	*PollingObserver

	client *rpcclient.Client
	params *chaincfg.Params
}

// NewRPCWallet dials bitcoind and returns a Wallet backed by it.
func NewRPCWallet(cfg RPCConfig) (*RPCWallet, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("btc: dial bitcoind at %s: %w", cfg.Host, err)
	}

	source := &rpcChainSource{client: client}
	return &RPCWallet{
		PollingObserver: NewPollingObserver(source),
		client:          client,
		params:          cfg.Params,
	}, nil
}

// Shutdown closes the underlying RPC connection.
func (w *RPCWallet) Shutdown() {
	w.client.Shutdown()
	w.client.WaitForShutdown()
}

func (w *RPCWallet) NewAddress(context.Context) (string, error) {
	addr, err := w.client.GetNewAddress("")
	if err != nil {
		return "", common.NewSwapError(common.ChainIo, "", err)
	}
	return addr.EncodeAddress(), nil
}

func (w *RPCWallet) Balance(context.Context) (common.BitcoinAmount, error) {
	amt, err := w.client.GetBalance("*")
	if err != nil {
		return 0, common.NewSwapError(common.ChainIo, "", err)
	}
	return common.BitcoinAmount(amt.ToUnit(btcutil.AmountSatoshi)), nil
}

// rpcChainSource implements ChainSource over bitcoind's node RPCs,
// independent of whether the wallet component is loaded. Split out
// from RPCWallet the same way PollingObserver separates polling logic
// from ChainSource so a daemon that only needs chain observation
// (Bob's side, out of this package's scope, or a future read-only
// monitor) can use it without wallet RPCs.
type rpcChainSource struct {
	client *rpcclient.Client
}

func (s *rpcChainSource) GetRawTransaction(_ context.Context, txid chainhash.Hash) (*wire.MsgTx, bool, error) {
	tx, err := s.client.GetRawTransaction(&txid)
	if err != nil {
		if rpcErr, ok := err.(*btcjson.RPCError); ok && rpcErr.Code == -5 {
			return nil, false, nil
		}
		return nil, false, err
	}
	return tx.MsgTx(), true, nil
}

func (s *rpcChainSource) GetConfirmations(_ context.Context, txid chainhash.Hash) (uint32, error) {
	verbose, err := s.client.GetRawTransactionVerbose(&txid)
	if err != nil {
		if rpcErr, ok := err.(*btcjson.RPCError); ok && rpcErr.Code == -5 {
			return 0, nil
		}
		return 0, err
	}
	if verbose.Confirmations < 0 {
		return 0, nil
	}
	return uint32(verbose.Confirmations), nil
}

func (s *rpcChainSource) GetBlockHeight(context.Context) (uint32, error) {
	height, err := s.client.GetBlockCount()
	if err != nil {
		return 0, err
	}
	return uint32(height), nil
}

func (s *rpcChainSource) GetTransactionBlockHeight(ctx context.Context, txid chainhash.Hash) (uint32, bool, error) {
	verbose, err := s.client.GetRawTransactionVerbose(&txid)
	if err != nil {
		if rpcErr, ok := err.(*btcjson.RPCError); ok && rpcErr.Code == -5 {
			return 0, false, nil
		}
		return 0, false, err
	}
	if verbose.BlockHash == "" {
		return 0, false, nil
	}
	blockHash, err := chainhash.NewHashFromStr(verbose.BlockHash)
	if err != nil {
		return 0, false, err
	}
	blockVerbose, err := s.client.GetBlockVerbose(blockHash)
	if err != nil {
		return 0, false, err
	}
	return uint32(blockVerbose.Height), true, nil
}

func (s *rpcChainSource) SendRawTransaction(_ context.Context, tx *wire.MsgTx) (chainhash.Hash, error) {
	hash, err := s.client.SendRawTransaction(tx, false)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *hash, nil
}

var _ ChainSource = (*rpcChainSource)(nil)
var _ Wallet = (*RPCWallet)(nil)
