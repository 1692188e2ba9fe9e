package btc

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/xmrswap/swapd/common"
)

func genKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func buildLockTx(t *testing.T, pubA, pubB *btcec.PublicKey, amount common.BitcoinAmount) *LockTx {
	t.Helper()
	_, out, err := genFundingPkScript(pubA, pubB, int64(amount))
	require.NoError(t, err)

	tx := wire.NewMsgTx(txVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(out)

	lock, err := NewLockTx(tx, pubA, pubB, amount)
	require.NoError(t, err)
	return lock
}

// TestRedeemTxDigestIsDeterministic exercises spec.md §4.2's
// determinism requirement: identical inputs produce byte-identical
// serializations, so both parties sign the same digest.
func TestRedeemTxDigestIsDeterministic(t *testing.T) {
	alice := genKey(t)
	bob := genKey(t)
	amount := common.BitcoinAmount(1_000_000)

	lock := buildLockTx(t, alice.PubKey(), bob.PubKey(), amount)

	destScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_TRUE).Script()
	require.NoError(t, err)

	redeem1 := NewRedeemTx(lock, alice.PubKey(), bob.PubKey(), destScript, amount-1000)
	redeem2 := NewRedeemTx(lock, alice.PubKey(), bob.PubKey(), destScript, amount-1000)

	digest1, err := redeem1.Digest()
	require.NoError(t, err)
	digest2, err := redeem2.Digest()
	require.NoError(t, err)

	require.Equal(t, digest1, digest2)
}

// TestCancelThenPunishChains ensures tx_punish correctly spends the
// output tx_cancel creates, per spec.md's transaction table.
func TestCancelThenPunishChains(t *testing.T) {
	alice := genKey(t)
	bob := genKey(t)
	amount := common.BitcoinAmount(1_000_000)

	lock := buildLockTx(t, alice.PubKey(), bob.PubKey(), amount)

	cancel, err := NewCancelTx(lock, alice.PubKey(), bob.PubKey(), 10, amount-500)
	require.NoError(t, err)

	destScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_TRUE).Script()
	require.NoError(t, err)

	punish := NewPunishTx(cancel, alice.PubKey(), bob.PubKey(), destScript, 20, amount-1000)

	require.Equal(t, cancel.tx.TxHash(), punish.tx.TxIn[0].PreviousOutPoint.Hash)
	require.Equal(t, uint32(20), punish.tx.TxIn[0].Sequence)
}

func TestGenSwapScriptOrdersPubkeysCanonically(t *testing.T) {
	alice := genKey(t)
	bob := genKey(t)

	s1, err := genSwapScript(alice.PubKey(), bob.PubKey())
	require.NoError(t, err)
	s2, err := genSwapScript(bob.PubKey(), alice.PubKey())
	require.NoError(t, err)

	require.Equal(t, s1, s2)
}
