package alice

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/xmrswap/swapd/chain/btc"
	"github.com/xmrswap/swapd/chain/xmr"
	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/dleq"
	"github.com/xmrswap/swapd/crypto/monero"
	"github.com/xmrswap/swapd/crypto/secp256k1"
	"github.com/xmrswap/swapd/net/message"
	"github.com/xmrswap/swapd/swapdb"
)

// chanTransport is a channel-backed Transport connecting a Machine
// under test directly to a scripted bobParty within the same process,
// standing in for net/peer.Conn's TCP socket.
type chanTransport struct {
	out chan message.Message
	in  chan message.Message
}

func newChanTransportPair() (*chanTransport, *chanTransport) {
	a := make(chan message.Message, 8)
	b := make(chan message.Message, 8)
	return &chanTransport{out: a, in: b}, &chanTransport{out: b, in: a}
}

func (c *chanTransport) Send(ctx context.Context, msg message.Message) error {
	select {
	case c.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *chanTransport) Receive(ctx context.Context) (message.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ Transport = (*chanTransport)(nil)

// bobParty scripts Bob's side of the handshake by hand, the way a
// real Bob implementation (out of this repo's scope, per spec.md's
// Non-goals) would: its own keys, its own independently constructed
// transaction templates, and genuine signatures Alice's own
// verification logic checks.
type bobParty struct {
	t *testing.T

	keys   *secp256k1.Keypair
	scalar [32]byte
	view   *monero.PrivateViewKey
	proof  *dleq.Proof

	refundAddr string
	redeemAddr string
	punishAddr string

	A      *btcec.PublicKey
	aSSecp *btcec.PublicKey

	lockTx   *btc.LockTx
	cancelTx *btc.CancelTx
	refundTx *btc.RefundTx
	punishTx *btc.PunishTx

	refundEncSigAlice *secp256k1.EncryptedSignature
}

func newBobParty(t *testing.T, refundAddr string) *bobParty {
	t.Helper()

	keys, err := secp256k1.Generate()
	require.NoError(t, err)

	var scalar [32]byte
	_, err = rand.Read(scalar[:])
	require.NoError(t, err)
	scalar[0] &= 0x0f // clamp below dleq's numBits, same as NewSwap does for Alice

	view, err := monero.NewPrivateViewKey()
	require.NoError(t, err)

	proof, err := dleq.Prove(scalar)
	require.NoError(t, err)

	return &bobParty{t: t, keys: keys, scalar: scalar, view: view, proof: proof, refundAddr: refundAddr}
}

func (b *bobParty) spendSecpPoint() *btcec.PublicKey {
	return secp256k1.PointFromScalar(b.scalar)
}

func (b *bobParty) spendEdPoint() *edwards25519.Point {
	sk, err := monero.PrivateSpendKeyFromSwapScalar(b.scalar)
	require.NoError(b.t, err)
	return sk.PublicKey().Point()
}

// sendM0 sends Bob's key material, the first message of the handshake.
func (b *bobParty) sendM0(ctx context.Context, transport Transport) {
	m0, err := message.NewBobKeys(b.keys.PublicKey(), b.spendSecpPoint(), b.spendEdPoint(),
		b.view, b.proof, b.refundAddr)
	require.NoError(b.t, err)
	require.NoError(b.t, transport.Send(ctx, m0))
}

// receiveM1 reads Alice's mirrored key message and records the fields
// Bob needs to build his own transaction templates.
func (b *bobParty) receiveM1(ctx context.Context, transport Transport) {
	msg, err := transport.Receive(ctx)
	require.NoError(b.t, err)
	aliceKeys, ok := msg.(*message.AliceKeys)
	require.True(b.t, ok, "expected M1 AliceKeys, got %T", msg)

	A, err := aliceKeys.A()
	require.NoError(b.t, err)
	b.A = A
	sSecp, err := aliceKeys.SSecp()
	require.NoError(b.t, err)
	b.aSSecp = sSecp
	b.redeemAddr = aliceKeys.RedeemAddr
	b.punishAddr = aliceKeys.PunishAddr
}

// buildLockTx constructs a tx_lock candidate paying the 2-of-2 output
// Alice's NewLockTx expects. FakeChainSource never executes scripts,
// so the spending input only needs a plausible, non-colliding
// outpoint, not a genuinely spendable prevout.
func (b *bobParty) buildLockTx(t *testing.T, amount common.BitcoinAmount) *wire.MsgTx {
	fundingOut, err := btc.FundingOutput(b.A, b.keys.PublicKey(), amount)
	require.NoError(t, err)

	var prevHash chainhash.Hash
	_, err = rand.Read(prevHash[:])
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 0}})
	tx.AddTxOut(fundingOut)
	return tx
}

// sendM2 builds, wraps, and sends Bob's tx_lock.
func (b *bobParty) sendM2(ctx context.Context, transport Transport, amount common.BitcoinAmount) {
	rawLockTx := b.buildLockTx(b.t, amount)

	lockTx, err := btc.NewLockTx(rawLockTx, b.A, b.keys.PublicKey(), amount)
	require.NoError(b.t, err)
	b.lockTx = lockTx

	m2, err := message.NewLockTx(rawLockTx)
	require.NoError(b.t, err)
	require.NoError(b.t, transport.Send(ctx, m2))
}

// prepareTemplates builds tx_cancel/tx_refund/tx_punish the same way
// Alice independently does, per spec.md §4.2's determinism
// requirement: both sides must arrive at byte-identical templates
// without exchanging them.
func (b *bobParty) prepareTemplates(t *testing.T, env common.Environment, cancelTimelock, punishTimelock uint32, amount common.BitcoinAmount) {
	cancelTx, err := btc.NewCancelTx(b.lockTx, b.A, b.keys.PublicKey(), cancelTimelock, amount)
	require.NoError(t, err)
	b.cancelTx = cancelTx

	params, err := btc.ChainParams(env)
	require.NoError(t, err)

	refundScript, err := btc.AddressScript(b.refundAddr, params)
	require.NoError(t, err)
	b.refundTx = btc.NewRefundTx(cancelTx, b.A, b.keys.PublicKey(), refundScript, amount)

	punishScript, err := btc.AddressScript(b.punishAddr, params)
	require.NoError(t, err)
	b.punishTx = btc.NewPunishTx(cancelTx, b.A, b.keys.PublicKey(), punishScript, punishTimelock, amount)
}

// receiveM3 reads and verifies Alice's tx_cancel signature and
// tx_refund encsig, the way a real Bob must before countersigning.
func (b *bobParty) receiveM3(ctx context.Context, transport Transport) {
	msg, err := transport.Receive(ctx)
	require.NoError(b.t, err)
	aliceSigs, ok := msg.(*message.AliceSigs)
	require.True(b.t, ok, "expected M3 AliceSigs, got %T", msg)

	cancelSig, err := aliceSigs.CancelSigValue()
	require.NoError(b.t, err)
	cancelDigest, err := b.cancelTx.Digest()
	require.NoError(b.t, err)
	require.True(b.t, secp256k1.Verify(b.A, cancelDigest, cancelSig), "alice's tx_cancel sig must verify")

	refundEncSig, err := aliceSigs.EncSig()
	require.NoError(b.t, err)
	refundDigest, err := b.refundTx.Digest()
	require.NoError(b.t, err)
	require.True(b.t, secp256k1.VerifyEncSig(b.A, b.spendSecpPoint(), refundDigest, refundEncSig),
		"alice's tx_refund encsig must verify under S_b")
	b.refundEncSigAlice = refundEncSig
}

// sendM4 signs and sends Bob's tx_cancel/tx_punish signatures.
func (b *bobParty) sendM4(ctx context.Context, transport Transport) {
	cancelDigest, err := b.cancelTx.Digest()
	require.NoError(b.t, err)
	cancelSig, err := secp256k1.Sign(b.keys.PrivateKey(), cancelDigest)
	require.NoError(b.t, err)

	punishDigest, err := b.punishTx.Digest()
	require.NoError(b.t, err)
	punishSig, err := secp256k1.Sign(b.keys.PrivateKey(), punishDigest)
	require.NoError(b.t, err)

	require.NoError(b.t, transport.Send(ctx, message.NewBobSigs(cancelSig, punishSig)))
}

// sendInvalidM4 signs tx_punish's digest into the cancel slot,
// producing a cancel signature that fails Alice's verification at M4
// without touching the wire encoding, for the early-abort scenario.
func (b *bobParty) sendInvalidM4(ctx context.Context, transport Transport) {
	punishDigest, err := b.punishTx.Digest()
	require.NoError(b.t, err)

	bogusCancelSig, err := secp256k1.Sign(b.keys.PrivateKey(), punishDigest)
	require.NoError(b.t, err)
	punishSig, err := secp256k1.Sign(b.keys.PrivateKey(), punishDigest)
	require.NoError(b.t, err)

	require.NoError(b.t, transport.Send(ctx, message.NewBobSigs(bogusCancelSig, punishSig)))
}

// sendM6 builds tx_redeem and sends Bob's encrypted signature over it
// under Alice's claimed cross-curve adaptor point S_a_secp, so that
// once Alice publishes the decrypted signature, recover(S_a_secp,
// sig, encsig) hands Bob s_a and the Monero spend it controls.
func (b *bobParty) sendM6(ctx context.Context, transport Transport, env common.Environment, amount common.BitcoinAmount) {
	params, err := btc.ChainParams(env)
	require.NoError(b.t, err)
	redeemScript, err := btc.AddressScript(b.redeemAddr, params)
	require.NoError(b.t, err)

	redeemTx := btc.NewRedeemTx(b.lockTx, b.A, b.keys.PublicKey(), redeemScript, amount)
	digest, err := redeemTx.Digest()
	require.NoError(b.t, err)

	encsig, err := secp256k1.EncSign(b.keys.PrivateKey(), b.aSSecp, digest)
	require.NoError(b.t, err)

	require.NoError(b.t, transport.Send(ctx, message.NewRedeemEncSig(encsig)))
}

// broadcastRefund decrypts Alice's M3 refund encsig with Bob's own
// cross-curve scalar, countersigns, and injects the finished
// tx_refund directly into source, simulating Bob publishing it
// on-chain after tx_cancel confirms.
func (b *bobParty) broadcastRefund(source *btc.FakeChainSource) *wire.MsgTx {
	t := b.t

	var y btcec.ModNScalar
	y.SetBytes(&b.scalar)

	aliceSig := secp256k1.DecSign(&y, b.refundEncSigAlice)

	refundDigest, err := b.refundTx.Digest()
	require.NoError(t, err)
	require.True(t, secp256k1.Verify(b.A, refundDigest, aliceSig), "decrypted alice refund sig must verify")

	bobSig, err := secp256k1.Sign(b.keys.PrivateKey(), refundDigest)
	require.NoError(t, err)

	finalTx, err := b.refundTx.AddSignatures(aliceSig.Bytes(), bobSig.Bytes())
	require.NoError(t, err)

	source.Inject(finalTx)
	return finalTx
}

// regtestAddress synthesizes a valid, independently decodable regtest
// P2WPKH address for use as a redeem/punish/refund destination, since
// btc.FakeWallet.NewAddress returns placeholder strings AddressScript
// can't decode.
func regtestAddress(t *testing.T) string {
	t.Helper()
	var hash [20]byte
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash[:], &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

// testHarness bundles one end-to-end scenario's collaborators.
type testHarness struct {
	t         *testing.T
	btcWallet *btc.FakeWallet
	xmrWallet *xmr.FakeWallet
	aliceSide *chanTransport
	bobSide   *chanTransport
	bob       *bobParty
	swap      *Swap
	machine   *Machine
	env       common.Environment
	btcAmount common.BitcoinAmount
	cancelTL  uint32
	punishTL  uint32
}

func fastTestParams() common.ExecutionParams {
	return common.ExecutionParams{
		BitcoinFinalityConfirmations: 1,
		BitcoinCancelTimelock:        3,
		BitcoinPunishTimelock:        6,
		BobTimeToAct:                 2 * time.Second,
		MoneroFinalityConfirmations:  1,
	}
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	aliceSide, bobSide := newChanTransportPair()

	env := common.Regtest
	btcAmount := common.BitcoinAmount(1_000_000)
	xmrAmount := common.MoneroAmountFromXMR(0.5)
	const cancelTL, punishTL uint32 = 3, 6

	swap, err := NewSwap(NewSwapParams{
		Env:             env,
		BTCAmount:       btcAmount,
		XMRAmount:       xmrAmount,
		CancelTimelock:  cancelTL,
		PunishTimelock:  punishTL,
		RedeemAddress:   regtestAddress(t),
		PunishAddress:   regtestAddress(t),
		XMRSweepAddress: monero.Address("fake-alice-sweep-address"),
	})
	require.NoError(t, err)

	btcWallet := btc.NewFakeWallet(0)
	xmrWallet := xmr.NewFakeWallet()

	machine := NewMachine(Config{
		BTCWallet:    btcWallet,
		Observer:     btcWallet,
		XMRWallet:    xmrWallet,
		Transport:    aliceSide,
		Params:       fastTestParams(),
		PollInterval: 20 * time.Millisecond,
	})

	return &testHarness{
		t:         t,
		btcWallet: btcWallet,
		xmrWallet: xmrWallet,
		aliceSide: aliceSide,
		bobSide:   bobSide,
		bob:       newBobParty(t, regtestAddress(t)),
		swap:      swap,
		machine:   machine,
		env:       env,
		btcAmount: btcAmount,
		cancelTL:  cancelTL,
		punishTL:  punishTL,
	}
}

// mineOnceSeen confirms each id the first time it appears in source's
// mempool, standing in for a miner including a broadcast transaction
// in the next block.
func mineOnceSeen(ctx context.Context, source *btc.FakeChainSource, interval time.Duration, ids ...chainhash.Hash) {
	go func() {
		seen := make(map[chainhash.Hash]bool, len(ids))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, id := range ids {
					if seen[id] {
						continue
					}
					if tx, found, _ := source.GetRawTransaction(ctx, id); found {
						source.Confirm(tx)
						seen[id] = true
					}
				}
			}
		}
	}()
}

// advanceHeightLoop keeps nudging source's height forward for as long
// as ctx is alive, standing in for blocks arriving on a real chain
// while a scenario races against its configured timelocks.
func advanceHeightLoop(ctx context.Context, source *btc.FakeChainSource, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				source.AdvanceHeight(1)
			}
		}
	}()
}

// TestHappyPathRedeem drives the full M0-M6 exchange and checks the
// swap finishes BtcRedeemed.
func TestHappyPathRedeem(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		h.bob.sendM0(ctx, h.bobSide)
		h.bob.receiveM1(ctx, h.bobSide)
		h.bob.sendM2(ctx, h.bobSide, h.btcAmount)
		h.bob.prepareTemplates(h.t, h.env, h.cancelTL, h.punishTL, h.btcAmount)
		h.bob.receiveM3(ctx, h.bobSide)
		h.bob.sendM4(ctx, h.bobSide)
		h.btcWallet.Source().Confirm(h.bob.lockTx.Tx)

		msg, err := h.bobSide.Receive(ctx)
		require.NoError(t, err)
		_, ok := msg.(*message.LockProof)
		require.True(t, ok, "expected M5 LockProof, got %T", msg)

		h.bob.sendM6(ctx, h.bobSide, h.env, h.btcAmount)
	}()

	final, err := h.machine.Run(ctx, h.swap)
	require.NoError(t, err)
	require.Equal(t, PhaseBtcRedeemed, final.Phase)
	require.Len(t, h.xmrWallet.Transfers(), 1)
}

// TestBobDisappearsPunish has Bob vanish right after M4: no M6 ever
// arrives, so the cancel timelock elapses, Alice broadcasts
// tx_cancel, and since no refund appears either, she eventually
// broadcasts tx_punish.
func TestBobDisappearsPunish(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	templatesReady := make(chan struct{})
	go func() {
		h.bob.sendM0(ctx, h.bobSide)
		h.bob.receiveM1(ctx, h.bobSide)
		h.bob.sendM2(ctx, h.bobSide, h.btcAmount)
		h.bob.prepareTemplates(h.t, h.env, h.cancelTL, h.punishTL, h.btcAmount)
		close(templatesReady)
		h.bob.receiveM3(ctx, h.bobSide)
		h.bob.sendM4(ctx, h.bobSide)
		h.btcWallet.Source().Confirm(h.bob.lockTx.Tx)
		// Bob never sends M6: he's gone.
	}()

	<-templatesReady
	cancelTxid := h.bob.cancelTx.Tx().TxHash()
	punishTxid := h.bob.punishTx.Tx().TxHash()
	mineOnceSeen(ctx, h.btcWallet.Source(), 10*time.Millisecond, cancelTxid, punishTxid)
	advanceHeightLoop(ctx, h.btcWallet.Source(), 10*time.Millisecond)

	final, err := h.machine.Run(ctx, h.swap)
	require.NoError(t, err)
	require.Equal(t, PhaseBtcPunished, final.Phase)
	require.NotNil(t, final.CancelTx)
	require.NotNil(t, final.PunishTx)
}

// TestBobRefundsRecoversMonero has Bob cancel and refund instead of
// redeeming, letting Alice recover s_b from the published tx_refund
// and sweep the joint Monero address.
func TestBobRefundsRecoversMonero(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	templatesReady := make(chan struct{})
	go func() {
		h.bob.sendM0(ctx, h.bobSide)
		h.bob.receiveM1(ctx, h.bobSide)
		h.bob.sendM2(ctx, h.bobSide, h.btcAmount)
		h.bob.prepareTemplates(h.t, h.env, h.cancelTL, h.punishTL, h.btcAmount)
		close(templatesReady)
		h.bob.receiveM3(ctx, h.bobSide)
		h.bob.sendM4(ctx, h.bobSide)
		h.btcWallet.Source().Confirm(h.bob.lockTx.Tx)

		msg, err := h.bobSide.Receive(ctx)
		require.NoError(t, err)
		_, ok := msg.(*message.LockProof)
		require.True(t, ok, "expected M5 LockProof, got %T", msg)

		// Bob lets the cancel timelock elapse instead of redeeming,
		// then refunds as soon as tx_cancel appears.
		source := h.btcWallet.Source()
		cancelTxid := h.bob.cancelTx.Tx().TxHash()
		for {
			if _, found, _ := source.GetRawTransaction(ctx, cancelTxid); found {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		h.bob.broadcastRefund(source)
	}()

	<-templatesReady
	cancelTxid := h.bob.cancelTx.Tx().TxHash()
	mineOnceSeen(ctx, h.btcWallet.Source(), 10*time.Millisecond, cancelTxid)
	advanceHeightLoop(ctx, h.btcWallet.Source(), 10*time.Millisecond)

	final, err := h.machine.Run(ctx, h.swap)
	require.NoError(t, err)
	require.Equal(t, PhaseXmrRefunded, final.Phase)
	require.NotNil(t, final.RecoveredSpendKey)

	expectedSpend, err := monero.PrivateSpendKeyFromSwapScalar(h.bob.scalar)
	require.NoError(t, err)
	require.Equal(t, expectedSpend.Bytes(), final.RecoveredSpendKey.Bytes())

	transfers := h.xmrWallet.Transfers()
	require.Len(t, transfers, 1)
	require.True(t, h.xmrWallet.Swept(transfers[0]))
}

// TestEarlyAbortInvalidBobSignature has Bob send a tx_cancel signature
// that doesn't verify at M4, the documented CryptoInvalid-before-
// BtcLocked abort path.
func TestEarlyAbortInvalidBobSignature(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		h.bob.sendM0(ctx, h.bobSide)
		h.bob.receiveM1(ctx, h.bobSide)
		h.bob.sendM2(ctx, h.bobSide, h.btcAmount)
		h.bob.prepareTemplates(h.t, h.env, h.cancelTL, h.punishTL, h.btcAmount)
		h.bob.receiveM3(ctx, h.bobSide)
		h.bob.sendInvalidM4(ctx, h.bobSide)
	}()

	final, err := h.machine.Run(ctx, h.swap)
	require.NoError(t, err)
	require.Equal(t, PhaseSafelyAborted, final.Phase)
}

// TestCrashResumeMidSwap persists the swap right after it reaches
// BtcLocked, as if the daemon crashed there, then resumes it from a
// fresh Machine against a reopened store and drives it to
// BtcRedeemed.
func TestCrashResumeMidSwap(t *testing.T) {
	h := newTestHarness(t)
	store, err := swapdb.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		h.bob.sendM0(ctx, h.bobSide)
		h.bob.receiveM1(ctx, h.bobSide)
		h.bob.sendM2(ctx, h.bobSide, h.btcAmount)
		h.bob.prepareTemplates(h.t, h.env, h.cancelTL, h.punishTL, h.btcAmount)
		h.bob.receiveM3(ctx, h.bobSide)
		h.bob.sendM4(ctx, h.bobSide)
		h.btcWallet.Source().Confirm(h.bob.lockTx.Tx)
	}()

	// runHandshake covers both the M0-M4 exchange and the wait for
	// tx_lock to confirm (awaitBtcLock runs inline at its tail), so it
	// lands exactly on the BtcLocked boundary a crash would leave
	// behind.
	afterHandshake, err := h.machine.runHandshake(ctx, h.swap)
	require.NoError(t, err)
	require.Equal(t, PhaseBtcLocked, afterHandshake.Phase)
	require.NoError(t, store.Save(ctx, afterHandshake))

	loaded, err := store.Get(afterHandshake.ID)
	require.NoError(t, err)
	require.Equal(t, PhaseBtcLocked, loaded.Phase)

	freshMachine := NewMachine(Config{
		BTCWallet:    h.btcWallet,
		Observer:     h.btcWallet,
		XMRWallet:    h.xmrWallet,
		Transport:    h.aliceSide,
		Store:        store,
		Params:       fastTestParams(),
		PollInterval: 20 * time.Millisecond,
	})

	go func() {
		msg, err := h.bobSide.Receive(ctx)
		require.NoError(t, err)
		_, ok := msg.(*message.LockProof)
		require.True(t, ok, "expected M5 LockProof, got %T", msg)
		h.bob.sendM6(ctx, h.bobSide, h.env, h.btcAmount)
	}()

	final, err := freshMachine.Run(ctx, loaded)
	require.NoError(t, err)
	require.Equal(t, PhaseBtcRedeemed, final.Phase)
}
