package xmr

import (
	"context"
	"fmt"
	"sync"

	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/monero"
)

// FakeWallet is an in-memory Wallet for swap/alice's end-to-end
// scenario tests, grounded on chain/btc.FakeChainSource's shape:
// explicit state mutation instead of a real RPC backend.
type FakeWallet struct {
	mu       sync.Mutex
	height   uint64
	transfer []fakeTransfer
	swept    map[monero.Address]bool
	nextTxID int
}

type fakeTransfer struct {
	addr   monero.Address
	amount common.MoneroAmount
}

// NewFakeWallet returns a FakeWallet starting at height 0.
func NewFakeWallet() *FakeWallet {
	return &FakeWallet{swept: make(map[monero.Address]bool)}
}

func (w *FakeWallet) AdvanceHeight(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.height += n
}

// Transfers returns every transfer sent so far, for test assertions.
func (w *FakeWallet) Transfers() []monero.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]monero.Address, len(w.transfer))
	for i, tr := range w.transfer {
		out[i] = tr.addr
	}
	return out
}

// Swept reports whether addr has been swept.
func (w *FakeWallet) Swept(addr monero.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.swept[addr]
}

func (w *FakeWallet) Transfer(_ context.Context, addr monero.Address, amount common.MoneroAmount) (string, common.MoneroAmount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transfer = append(w.transfer, fakeTransfer{addr: addr, amount: amount})
	w.nextTxID++
	const fakeFee common.MoneroAmount = 7_500_000 // piconero, a plausible fixed fee for tests
	return fmt.Sprintf("fake-xmr-tx-%d", w.nextTxID), fakeFee, nil
}

func (w *FakeWallet) Sweep(_ context.Context, kp *monero.PrivateKeyPair, addr monero.Address, env common.Environment) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	kpAddr, err := kp.Address(env)
	if err != nil {
		return "", err
	}
	w.swept[kpAddr] = true
	w.nextTxID++
	return fmt.Sprintf("fake-xmr-sweep-%d", w.nextTxID), nil
}

func (w *FakeWallet) Height(context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height, nil
}

var _ Wallet = (*FakeWallet)(nil)
