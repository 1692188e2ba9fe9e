package btc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/xmrswap/swapd/common"
)

// ChainParams resolves the btcutil/chaincfg parameters matching a
// swap's common.Environment, the same env enum chain/xmr's address
// encoding switches on.
func ChainParams(env common.Environment) (*chaincfg.Params, error) {
	switch env {
	case common.Mainnet:
		return &chaincfg.MainNetParams, nil
	case common.Testnet:
		return &chaincfg.TestNet3Params, nil
	case common.Regtest:
		return &chaincfg.RegressionNetParams, nil
	case common.Stagenet:
		// Bitcoin has no stagenet; swap.md's Monero-side stagenet maps
		// to Bitcoin regtest for local end-to-end testing.
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("btc: unknown environment %d", env)
	}
}

// AddressScript decodes a base58/bech32 address string and returns its
// pkScript, the form tx_redeem/tx_refund/tx_punish's destination output
// needs.
func AddressScript(addr string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("btc: invalid address %q: %w", addr, err)
	}
	return txscript.PayToAddrScript(decoded)
}
