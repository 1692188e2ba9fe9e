package btc

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/xmrswap/swapd/common"
)

// Wallet is spec.md §6's Bitcoin wallet adapter: the operations a swap
// needs around chain observation without owning signing for the
// multisig paths (those go through crypto/secp256k1 directly, since a
// wallet RPC daemon wouldn't know how to produce an adaptor signature).
type Wallet interface {
	// NewAddress returns a fresh receive address.
	NewAddress(ctx context.Context) (string, error)

	// Balance returns the wallet's current confirmed balance.
	Balance(ctx context.Context) (common.BitcoinAmount, error)

	ChainObserver
}

// TxidString formats a chainhash.Hash the way spec.md's user-visible
// failure reports (§7) reference a transaction.
func TxidString(h chainhash.Hash) string {
	return h.String()
}
