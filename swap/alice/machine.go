package alice

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrswap/swapd/chain/btc"
	"github.com/xmrswap/swapd/chain/xmr"
	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/monero"
	"github.com/xmrswap/swapd/crypto/secp256k1"
	"github.com/xmrswap/swapd/net/message"
)

// Store persists a Swap's current state after every phase transition,
// the mechanism spec.md §5 requires for a crashed daemon to resume an
// in-flight swap rather than losing it.
type Store interface {
	Save(ctx context.Context, s *Swap) error
}

// Config bundles everything a Machine needs beyond the Swap itself:
// the chain and wallet collaborators spec.md §6 lists, the peer
// transport, and the persistence store. Grounded on peer.go's
// per-connection dependency bundle (Brontide, ChainNotifier, wallet),
// generalized across two chains instead of one.
type Config struct {
	BTCWallet btc.Wallet
	Observer  btc.ChainObserver
	XMRWallet xmr.Wallet
	Transport Transport
	Store     Store
	Params    common.ExecutionParams

	// PollInterval spaces out height polls the race steps run
	// themselves (distinct from Observer's own internal poll cadence).
	// Defaults to btc.PollInterval.
	PollInterval time.Duration
}

// Machine drives a single Swap through its phases, per spec.md §4.4's
// state machine. One Machine instance is created per in-flight swap;
// Config is shared infrastructure, not per-swap state.
type Machine struct {
	cfg Config
}

// NewMachine returns a Machine that will drive swaps using cfg.
func NewMachine(cfg Config) *Machine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = btc.PollInterval
	}
	return &Machine{cfg: cfg}
}

// Run advances s one phase at a time until it reaches a terminal
// phase (BtcRedeemed, BtcPunished, XmrRefunded, SafelyAborted),
// persisting after every transition. A non-nil error means s stopped
// mid-phase and Run can be called again on the same (persisted) s to
// retry from there, per spec.md §5's suspend/resume requirement.
func (m *Machine) Run(ctx context.Context, s *Swap) (*Swap, error) {
	for !s.Phase.IsTerminal() {
		next, err := m.step(ctx, s)
		if err != nil {
			return s, err
		}
		s = next

		if m.cfg.Store != nil {
			if err := m.cfg.Store.Save(ctx, s); err != nil {
				return s, common.NewSwapError(common.Fatal, s.ID.String(), err)
			}
		}
	}
	return s, nil
}

func (m *Machine) step(ctx context.Context, s *Swap) (*Swap, error) {
	switch s.Phase {
	case PhaseStarted:
		return m.runHandshake(ctx, s)
	case PhaseBtcLocked:
		return m.lockXMR(ctx, s)
	case PhaseXmrLocked:
		return m.waitForRedeemOrCancel(ctx, s)
	case PhaseEncSigLearned:
		return m.redeemStep(ctx, s)
	case PhaseCancelTimelockExpired:
		return m.broadcastCancel(ctx, s)
	case PhaseBtcCancelled:
		return m.waitCancelled(ctx, s)
	case PhaseBtcRefunded:
		return m.handleRefund(ctx, s)
	case PhaseBtcPunishable:
		return m.broadcastPunish(ctx, s)
	default:
		return nil, fmt.Errorf("alice: no step defined for phase %s", s.Phase)
	}
}

// awaitBtcLock blocks until tx_lock appears and reaches finality,
// within bob_time_to_act of completing the handshake (spec.md §5).
// Bob never appearing at all is not an error path: it's the
// documented abort-to-SafelyAborted case.
func (m *Machine) awaitBtcLock(ctx context.Context, s *Swap) (*Swap, error) {
	lockTxid := s.LockTx.Tx.TxHash()

	waitCtx, cancelWait := context.WithTimeout(ctx, m.cfg.Params.BobTimeToAct)
	defer cancelWait()

	if _, err := m.cfg.Observer.WatchForRawTransaction(waitCtx, lockTxid); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded {
			log.Warnf("swap_id=%s bob_time_to_act elapsed without tx_lock appearing", s.ID)
			return s.transition(PhaseSafelyAborted), nil
		}
		return nil, err
	}

	if err := m.cfg.Observer.WaitForTransactionFinality(ctx, lockTxid, m.cfg.Params.BitcoinFinalityConfirmations); err != nil {
		return nil, err
	}

	height, ok, err := m.cfg.Observer.TransactionBlockHeight(ctx, lockTxid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.Errorf(common.Fatal, s.ID.String(),
			"tx_lock reached finality but has no recorded confirmation height")
	}
	s.LockConfirmHeight = height

	return s.transition(PhaseBtcLocked), nil
}

// lockXMR funds the joint one-time Monero address and sends M5,
// without waiting for monero_finality_confirmations first (spec.md
// §9's documented open question).
func (m *Machine) lockXMR(ctx context.Context, s *Swap) (*Swap, error) {
	jointSpend, err := s.JointSpendPublicKey()
	if err != nil {
		return nil, err
	}
	jointView := s.JointViewKey()

	addr, err := monero.NewAddress(jointSpend, jointView.PublicKey(), s.Env)
	if err != nil {
		return nil, err
	}

	txHash, fee, err := m.cfg.XMRWallet.Transfer(ctx, addr, s.XMRAmount)
	if err != nil {
		return nil, common.NewSwapError(common.ChainIo, s.ID.String(), err)
	}
	s.LockProofTxID = txHash
	s.LockFee = fee

	if err := m.cfg.Transport.Send(ctx, message.NewLockProof(txHash, s.LockProofKey, string(addr))); err != nil {
		return nil, err
	}

	return s.transition(PhaseXmrLocked), nil
}

// waitForRedeemOrCancel races M6's arrival against the cancel
// timelock elapsing. A tie is broken in favor of the arriving message
// (spec.md §9): an observed protocol event outranks a derived
// deadline. Per spec.md §4.4 step 3a, an M6 payload that fails
// verify_encsig is not trusted as a redeem: it falls through to the
// cancel-timelock branch exactly as if M6 had never arrived.
func (m *Machine) waitForRedeemOrCancel(ctx context.Context, s *Swap) (*Swap, error) {
	raceCtx, stopRace := context.WithCancel(ctx)
	defer stopRace()

	redeemTx, err := s.redeemTxTemplate()
	if err != nil {
		return nil, err
	}
	redeemDigest, err := redeemTx.Digest()
	if err != nil {
		return nil, err
	}
	sASecp := secp256k1.PointFromScalar(s.CrossCurveScalar)

	type redeemResult struct {
		encsig *secp256k1.EncryptedSignature
		valid  bool
		err    error
	}
	redeemCh := make(chan redeemResult, 1)
	go func() {
		msg, err := receiveAs[message.RedeemEncSig](raceCtx, m.cfg.Transport, "M6/redeem_encsig")
		if err != nil {
			redeemCh <- redeemResult{err: err}
			return
		}
		encsig, err := msg.EncSigValue()
		if err != nil {
			redeemCh <- redeemResult{err: err}
			return
		}
		redeemCh <- redeemResult{encsig: encsig, valid: secp256k1.VerifyEncSig(s.B, sASecp, redeemDigest, encsig)}
	}()

	timelockCh := make(chan error, 1)
	go func() {
		timelockCh <- m.waitForHeight(raceCtx, s.LockConfirmHeight+s.CancelTimelock)
	}()

	acceptRedeem := func(res redeemResult) (*Swap, error, bool) {
		if res.err != nil {
			return nil, res.err, true
		}
		if !res.valid {
			log.Warnf("swap_id=%s M6 encsig failed verify_encsig, falling back to cancel path", s.ID)
			return nil, nil, false
		}
		s.RedeemEncSig = res.encsig
		return s.transition(PhaseEncSigLearned), nil, true
	}

	if res, ok := tryRecv(redeemCh); ok {
		if next, err, accepted := acceptRedeem(res); accepted {
			return next, err
		}
		if err := <-timelockCh; err != nil {
			return nil, err
		}
		return s.transition(PhaseCancelTimelockExpired), nil
	}

	select {
	case res := <-redeemCh:
		if next, err, accepted := acceptRedeem(res); accepted {
			return next, err
		}
		if err := <-timelockCh; err != nil {
			return nil, err
		}
		return s.transition(PhaseCancelTimelockExpired), nil
	case err := <-timelockCh:
		if err != nil {
			return nil, err
		}
		return s.transition(PhaseCancelTimelockExpired), nil
	}
}

// redeemStep decrypts Bob's M6 encsig with Alice's cross-curve
// adaptor scalar s_a, verifies the result, and broadcasts the
// finished tx_redeem. Decrypting with s_a rather than her plain
// Bitcoin scalar a is what lets Bob, on seeing the finished tx_redeem
// on-chain, run recover(S_a_secp, sig, encsig) and learn s_a to claim
// the Monero side (spec.md §3/§4.4).
func (m *Machine) redeemStep(ctx context.Context, s *Swap) (*Swap, error) {
	var y btcec.ModNScalar
	y.SetBytes(&s.CrossCurveScalar)
	bobSig := secp256k1.DecSign(&y, s.RedeemEncSig)

	redeemTx, err := s.redeemTxTemplate()
	if err != nil {
		return nil, err
	}
	redeemDigest, err := redeemTx.Digest()
	if err != nil {
		return nil, err
	}
	if !secp256k1.Verify(s.B, redeemDigest, bobSig) {
		return nil, common.Errorf(common.CryptoInvalid, s.ID.String(),
			"decrypted tx_redeem signature from bob does not verify")
	}

	aliceSig, err := secp256k1.Sign(s.Keys.PrivateKey(), redeemDigest)
	if err != nil {
		return nil, fmt.Errorf("alice: sign tx_redeem: %w", err)
	}

	finalTx, err := redeemTx.AddSignatures(aliceSig.Bytes(), bobSig.Bytes())
	if err != nil {
		return nil, err
	}
	if _, err := m.cfg.Observer.BroadcastSignedTransaction(ctx, finalTx); err != nil {
		// tx_redeem and tx_cancel both spend tx_lock's 2-of-2 output, so
		// if tx_cancel won the race and already landed, broadcasting
		// tx_redeem fails instead of idempotently succeeding. Per
		// spec.md §4.4's tie-break, that's not a fatal error: fall
		// through to the cancel path exactly as if the timelock had
		// won the race in waitForRedeemOrCancel.
		if m.cancelTxLanded(ctx, s) {
			return s.transition(PhaseCancelTimelockExpired), nil
		}
		return nil, err
	}

	return s.transition(PhaseBtcRedeemed), nil
}

// cancelTxLanded reports whether tx_cancel is already visible on
// chain, without blocking: it hands WatchForRawTransaction an
// already-expired context so its first, synchronous presence check
// runs but the retry loop behind it never does.
func (m *Machine) cancelTxLanded(ctx context.Context, s *Swap) bool {
	cancelTemplate, err := s.cancelTxTemplate()
	if err != nil {
		return false
	}
	peekCtx, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	_, err = m.cfg.Observer.WatchForRawTransaction(peekCtx, cancelTemplate.Tx().TxHash())
	return err == nil
}

// broadcastCancel assembles and broadcasts tx_cancel from the
// signatures both parties already exchanged at M3/M4 — no new
// signing happens here.
func (m *Machine) broadcastCancel(ctx context.Context, s *Swap) (*Swap, error) {
	cancelTx, err := s.cancelTxTemplate()
	if err != nil {
		return nil, err
	}
	finalTx, err := cancelTx.AddSignatures(s.CancelSigAlice.Bytes(), s.CancelSigBob.Bytes())
	if err != nil {
		return nil, err
	}

	// BroadcastSignedTransaction already tolerates an already-mined
	// transaction, so no prior mempool check is needed here (spec.md
	// §4.4 step 5).
	if _, err := m.cfg.Observer.BroadcastSignedTransaction(ctx, finalTx); err != nil {
		return nil, err
	}
	s.CancelTx = finalTx

	return s.transition(PhaseBtcCancelled), nil
}

// waitCancelled waits for tx_cancel to finalize, then races Bob's
// tx_refund appearing against the punish timelock elapsing relative
// to tx_cancel's own confirmation height.
func (m *Machine) waitCancelled(ctx context.Context, s *Swap) (*Swap, error) {
	cancelTxid := s.CancelTx.TxHash()
	if err := m.cfg.Observer.WaitForTransactionFinality(ctx, cancelTxid, m.cfg.Params.BitcoinFinalityConfirmations); err != nil {
		return nil, err
	}
	cancelHeight, ok, err := m.cfg.Observer.TransactionBlockHeight(ctx, cancelTxid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.Errorf(common.Fatal, s.ID.String(),
			"tx_cancel reached finality but has no recorded confirmation height")
	}

	cancelTemplate, err := s.cancelTxTemplate()
	if err != nil {
		return nil, err
	}
	refundTx, err := s.refundTxTemplate(cancelTemplate)
	if err != nil {
		return nil, err
	}
	refundTxid := refundTx.Tx().TxHash()

	return m.raceRefundAgainst(ctx, s, refundTxid, func(raceCtx context.Context) error {
		return m.waitForHeight(raceCtx, cancelHeight+s.PunishTimelock)
	}, PhaseBtcPunishable)
}

// broadcastPunish signs and broadcasts tx_punish, then keeps racing
// Bob's tx_refund against tx_punish's own finality: a refund that
// lands before tx_punish confirms still preempts punish (spec.md
// §4.4 step 6).
func (m *Machine) broadcastPunish(ctx context.Context, s *Swap) (*Swap, error) {
	cancelTemplate, err := s.cancelTxTemplate()
	if err != nil {
		return nil, err
	}
	punishTx, err := s.punishTxTemplate(cancelTemplate)
	if err != nil {
		return nil, err
	}
	punishDigest, err := punishTx.Digest()
	if err != nil {
		return nil, err
	}
	aliceSig, err := secp256k1.Sign(s.Keys.PrivateKey(), punishDigest)
	if err != nil {
		return nil, fmt.Errorf("alice: sign tx_punish: %w", err)
	}
	finalTx, err := punishTx.AddSignatures(aliceSig.Bytes(), s.PunishSigBob.Bytes())
	if err != nil {
		return nil, err
	}
	if _, err := m.cfg.Observer.BroadcastSignedTransaction(ctx, finalTx); err != nil {
		return nil, err
	}
	s.PunishTx = finalTx
	punishTxid := finalTx.TxHash()

	refundTx, err := s.refundTxTemplate(cancelTemplate)
	if err != nil {
		return nil, err
	}
	refundTxid := refundTx.Tx().TxHash()

	return m.raceRefundAgainst(ctx, s, refundTxid, func(raceCtx context.Context) error {
		return m.cfg.Observer.WaitForTransactionFinality(raceCtx, punishTxid, m.cfg.Params.BitcoinFinalityConfirmations)
	}, PhaseBtcPunished)
}

// raceRefundAgainst is the two call sites' shared race shape: watch
// for refundTxid to appear, racing it against other's completion.
// Ties (both ready) favor the observed refund, same left-biased rule
// as waitForRedeemOrCancel.
func (m *Machine) raceRefundAgainst(ctx context.Context, s *Swap, refundTxid chainhash.Hash,
	other func(context.Context) error, otherPhase Phase) (*Swap, error) {

	raceCtx, stopRace := context.WithCancel(ctx)
	defer stopRace()

	refundCh := make(chan *wire.MsgTx, 1)
	go func() {
		tx, err := m.cfg.Observer.WatchForRawTransaction(raceCtx, refundTxid)
		if err == nil {
			refundCh <- tx
		}
	}()

	otherCh := make(chan error, 1)
	go func() {
		otherCh <- other(raceCtx)
	}()

	if tx, ok := tryRecv(refundCh); ok {
		s.ObservedRefundTx = tx
		return s.transition(PhaseBtcRefunded), nil
	}

	select {
	case tx := <-refundCh:
		s.ObservedRefundTx = tx
		return s.transition(PhaseBtcRefunded), nil
	case err := <-otherCh:
		if err != nil {
			return nil, err
		}
		return s.transition(otherPhase), nil
	}
}

// handleRefund recovers Bob's Monero spend-key half from his
// published tx_refund and sweeps the joint address to Alice's own
// wallet, per spec.md §3's core guarantee: a refund on one chain
// always yields recovery on the other.
func (m *Machine) handleRefund(ctx context.Context, s *Swap) (*Swap, error) {
	sigABytes, _, err := btc.ExtractSignatures(s.ObservedRefundTx, s.Keys.PublicKey(), s.B)
	if err != nil {
		return nil, common.NewSwapError(common.Fatal, s.ID.String(), err)
	}
	sigA, err := secp256k1.SignatureFromBytes(sigABytes)
	if err != nil {
		return nil, common.NewSwapError(common.Fatal, s.ID.String(), err)
	}

	yScalar, err := secp256k1.Recover(s.SBSecp, sigA, s.RefundEncSig)
	if err != nil {
		return nil, common.Errorf(common.CryptoInvalid, s.ID.String(), "recover s_b from tx_refund: %w", err)
	}
	bSpend, err := monero.PrivateSpendKeyFromSwapScalar(yScalar.Bytes())
	if err != nil {
		return nil, common.NewSwapError(common.Fatal, s.ID.String(), err)
	}

	aSpend, err := monero.PrivateSpendKeyFromSwapScalar(s.CrossCurveScalar)
	if err != nil {
		return nil, err
	}
	jointSpend := monero.SumPrivateSpendKeys(aSpend, bSpend)
	jointView := s.JointViewKey()
	kp := monero.NewPrivateKeyPair(jointSpend, jointView)

	s.RecoveredSpendKey = bSpend
	s = s.transition(PhaseBtcRefunded)

	if _, err := m.cfg.XMRWallet.Sweep(ctx, kp, s.XMRSweepAddress, s.Env); err != nil {
		return nil, common.NewSwapError(common.ChainIo, s.ID.String(), err)
	}

	return s.transition(PhaseXmrRefunded), nil
}

func (m *Machine) waitForHeight(ctx context.Context, target uint32) error {
	for {
		h, err := m.cfg.Observer.GetBlockHeight(ctx)
		if err != nil {
			return err
		}
		if h >= target {
			return nil
		}
		if err := sleepCtx(ctx, m.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func tryRecv[T any](ch <-chan T) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
