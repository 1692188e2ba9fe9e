package btc

import (
	"context"
	"fmt"
	"sync"

	"github.com/xmrswap/swapd/common"
)

// FakeWallet is an in-memory Wallet for swap/alice's end-to-end
// scenario tests, pairing a FakeChainSource-backed observer with a
// trivial address/balance model. Grounded on chain/xmr.FakeWallet's
// shape: explicit state mutation instead of a real RPC backend.
type FakeWallet struct {
	*PollingObserver

	mu         sync.Mutex
	source     *FakeChainSource
	balance    common.BitcoinAmount
	nextAddrID int
}

// NewFakeWallet returns a FakeWallet backed by a fresh FakeChainSource,
// starting with the given balance.
func NewFakeWallet(balance common.BitcoinAmount) *FakeWallet {
	source := NewFakeChainSource()
	return &FakeWallet{
		PollingObserver: NewPollingObserverWithInterval(source, 0),
		source:          source,
		balance:         balance,
	}
}

// Source exposes the underlying FakeChainSource, for tests that need to
// advance height or inject transactions directly.
func (w *FakeWallet) Source() *FakeChainSource {
	return w.source
}

func (w *FakeWallet) NewAddress(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextAddrID++
	return fmt.Sprintf("bcrt1qfake-addr-%d", w.nextAddrID), nil
}

func (w *FakeWallet) Balance(context.Context) (common.BitcoinAmount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}

var _ Wallet = (*FakeWallet)(nil)
