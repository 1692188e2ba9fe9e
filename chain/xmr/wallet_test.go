package xmr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/monero"
)

func TestFakeWalletTransferAndSweep(t *testing.T) {
	spend, err := monero.NewPrivateSpendKey()
	require.NoError(t, err)
	view, err := monero.NewPrivateViewKey()
	require.NoError(t, err)
	kp := monero.NewPrivateKeyPair(spend, view)

	addr, err := kp.Address(common.Mainnet)
	require.NoError(t, err)

	wallet := NewFakeWallet()
	ctx := context.Background()

	txHash, err := wallet.Transfer(ctx, addr, common.MoneroAmount(1_000_000_000_000))
	require.NoError(t, err)
	require.NotEmpty(t, txHash)
	require.Contains(t, wallet.Transfers(), addr)

	require.False(t, wallet.Swept(addr))
	_, err = wallet.Sweep(ctx, kp, addr, common.Mainnet)
	require.NoError(t, err)
	require.True(t, wallet.Swept(addr))
}
