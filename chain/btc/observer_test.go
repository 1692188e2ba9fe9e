package btc

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestPollingObserverWatchForRawTransaction(t *testing.T) {
	source := NewFakeChainSource()
	observer := NewPollingObserverWithInterval(source, 5*time.Millisecond)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		source.Inject(tx)
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := observer.WatchForRawTransaction(ctx, tx.TxHash())
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), got.TxHash())
	<-done
}

func TestPollingObserverWaitForTransactionFinality(t *testing.T) {
	source := NewFakeChainSource()
	observer := NewPollingObserverWithInterval(source, 5*time.Millisecond)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	source.Confirm(tx)

	go func() {
		time.Sleep(20 * time.Millisecond)
		source.AdvanceHeight(5)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := observer.WaitForTransactionFinality(ctx, tx.TxHash(), 6)
	require.NoError(t, err)
}

func TestBroadcastSignedTransactionToleratesAlreadyMined(t *testing.T) {
	source := NewFakeChainSource()
	observer := NewPollingObserverWithInterval(source, time.Millisecond)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{})
	source.Confirm(tx)
	source.SetBroadcastError(errAlreadyInChain)

	txid, err := observer.BroadcastSignedTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), txid)
}

var errAlreadyInChain = &testError{"transaction already in block chain"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
