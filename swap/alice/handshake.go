package alice

import (
	"context"
	"fmt"

	"github.com/xmrswap/swapd/chain/btc"
	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/secp256k1"
	"github.com/xmrswap/swapd/net/message"
)

// runHandshake drives PhaseStarted to completion: the M0..M4 exchange
// of spec.md §4.4, followed by waiting for tx_lock to confirm. Any
// CryptoInvalid or ProtocolViolation encountered here transitions to
// SafelyAborted rather than propagating, per spec.md §7's propagation
// rule ("CryptoInvalid and ProtocolViolation before BtcLocked ->
// SafelyAborted").
func (m *Machine) runHandshake(ctx context.Context, s *Swap) (*Swap, error) {
	next, err := m.handshakeInner(ctx, s)
	if err != nil {
		if swapErr, ok := err.(*common.SwapError); ok {
			switch swapErr.Kind() {
			case common.CryptoInvalid, common.ProtocolViolation:
				log.Warnf("swap_id=%s handshake aborted: %v", s.ID, err)
				return s.transition(PhaseSafelyAborted), nil
			}
		}
		return nil, err
	}
	return next, nil
}

func (m *Machine) handshakeInner(ctx context.Context, s *Swap) (*Swap, error) {
	// M0: receive Bob's keys and refund address, verify his DLEQ proof
	// before trusting either of his claimed points (spec.md §4.4
	// "Receive validation at M0").
	bobKeys, err := receiveAs[message.BobKeys](ctx, m.cfg.Transport, "M0/bob_keys")
	if err != nil {
		return nil, err
	}

	B, err := bobKeys.B()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	sBSecp, err := bobKeys.SSecp()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	sBEd, err := bobKeys.SEd()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	vB, err := bobKeys.V()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	proof, err := bobKeys.DLEQProof()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}

	result, err := proof.Verify()
	if err != nil {
		return nil, common.Errorf(common.CryptoInvalid, s.ID.String(), "M0 dleq proof: %w", err)
	}
	if !result.Secp256k1Point.IsEqual(sBSecp) || result.Ed25519Point.Equal(sBEd) != 1 {
		return nil, common.Errorf(common.CryptoInvalid, s.ID.String(),
			"M0 dleq proof does not bind bob's claimed points")
	}

	s.B = B
	s.SBSecp = sBSecp
	s.SBEd = sBEd
	s.JointView = vB
	s.RefundAddress = bobKeys.RefundAddr

	// M1: send Alice's mirror of M0.
	spendSecp := secp256k1.PointFromScalar(s.CrossCurveScalar)
	spendPubEd, err := s.SpendPublicKey()
	if err != nil {
		return nil, fmt.Errorf("alice: derive M1 spend point: %w", err)
	}

	aliceKeys, err := message.NewAliceKeys(
		s.Keys.PublicKey(), spendSecp, spendPubEd.Point(), s.ViewKeyShare, s.DLEQProof,
		s.RedeemAddress, s.PunishAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("alice: build M1: %w", err)
	}
	if err := m.cfg.Transport.Send(ctx, aliceKeys); err != nil {
		return nil, err
	}

	// M2: receive Bob's partial tx_lock and locate its 2-of-2 output.
	lockTxMsg, err := receiveAs[message.LockTx](ctx, m.cfg.Transport, "M2/lock_tx")
	if err != nil {
		return nil, err
	}
	rawLockTx, err := lockTxMsg.Tx()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	lockTx, err := btc.NewLockTx(rawLockTx, s.Keys.PublicKey(), s.B, s.BTCAmount)
	if err != nil {
		return nil, err
	}
	s.LockTx = lockTx

	// M3: sign tx_cancel, encsign tx_refund under S_b, and send both.
	cancelTx, err := s.cancelTxTemplate()
	if err != nil {
		return nil, err
	}
	cancelDigest, err := cancelTx.Digest()
	if err != nil {
		return nil, err
	}
	cancelSig, err := secp256k1.Sign(s.Keys.PrivateKey(), cancelDigest)
	if err != nil {
		return nil, fmt.Errorf("alice: sign tx_cancel: %w", err)
	}

	refundScript, err := s.destScript(s.RefundAddress)
	if err != nil {
		return nil, err
	}
	refundTx := btc.NewRefundTx(cancelTx, s.Keys.PublicKey(), s.B, refundScript, s.BTCAmount)
	refundDigest, err := refundTx.Digest()
	if err != nil {
		return nil, err
	}
	refundEncSig, err := secp256k1.EncSign(s.Keys.PrivateKey(), s.SBSecp, refundDigest)
	if err != nil {
		return nil, fmt.Errorf("alice: encsign tx_refund: %w", err)
	}
	// Invariant (spec.md §8): the encsig Alice just produced must
	// itself verify before it's ever sent.
	if !secp256k1.VerifyEncSig(s.Keys.PublicKey(), s.SBSecp, refundDigest, refundEncSig) {
		return nil, common.Errorf(common.Fatal, s.ID.String(), "freshly produced tx_refund encsig fails self-verification")
	}

	s.CancelSigAlice = cancelSig
	s.RefundEncSig = refundEncSig

	if err := m.cfg.Transport.Send(ctx, message.NewAliceSigs(refundEncSig, cancelSig)); err != nil {
		return nil, err
	}

	// M4: receive and verify Bob's signatures over tx_cancel and
	// tx_punish. A failure here is spec.md §4.4's named abort point.
	bobSigs, err := receiveAs[message.BobSigs](ctx, m.cfg.Transport, "M4/bob_sigs")
	if err != nil {
		return nil, err
	}
	cancelSigBob, err := bobSigs.CancelSigValue()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	if !secp256k1.Verify(s.B, cancelDigest, cancelSigBob) {
		return nil, common.Errorf(common.CryptoInvalid, s.ID.String(), "bob's tx_cancel signature does not verify")
	}

	punishTx, err := s.punishTxTemplate(cancelTx)
	if err != nil {
		return nil, err
	}
	punishDigest, err := punishTx.Digest()
	if err != nil {
		return nil, err
	}
	punishSigBob, err := bobSigs.PunishSigValue()
	if err != nil {
		return nil, common.NewSwapError(common.ProtocolViolation, s.ID.String(), err)
	}
	if !secp256k1.Verify(s.B, punishDigest, punishSigBob) {
		return nil, common.Errorf(common.CryptoInvalid, s.ID.String(), "bob's tx_punish signature does not verify")
	}

	s.CancelSigBob = cancelSigBob
	s.PunishSigBob = punishSigBob

	return m.awaitBtcLock(ctx, s)
}

// destScript resolves a base58/bech32 address string to the pkScript
// form the transaction templates need, for the environment the swap
// was created in.
func (s *Swap) destScript(addr string) ([]byte, error) {
	params, err := btc.ChainParams(s.Env)
	if err != nil {
		return nil, err
	}
	return btc.AddressScript(addr, params)
}

func (s *Swap) cancelTxTemplate() (*btc.CancelTx, error) {
	return btc.NewCancelTx(s.LockTx, s.Keys.PublicKey(), s.B, s.CancelTimelock, s.BTCAmount)
}

func (s *Swap) refundTxTemplate(cancelTx *btc.CancelTx) (*btc.RefundTx, error) {
	script, err := s.destScript(s.RefundAddress)
	if err != nil {
		return nil, err
	}
	return btc.NewRefundTx(cancelTx, s.Keys.PublicKey(), s.B, script, s.BTCAmount), nil
}

func (s *Swap) punishTxTemplate(cancelTx *btc.CancelTx) (*btc.PunishTx, error) {
	script, err := s.destScript(s.PunishAddress)
	if err != nil {
		return nil, err
	}
	return btc.NewPunishTx(cancelTx, s.Keys.PublicKey(), s.B, script, s.PunishTimelock, s.BTCAmount), nil
}

func (s *Swap) redeemTxTemplate() (*btc.RedeemTx, error) {
	script, err := s.destScript(s.RedeemAddress)
	if err != nil {
		return nil, err
	}
	return btc.NewRedeemTx(s.LockTx, s.Keys.PublicKey(), s.B, script, s.BTCAmount), nil
}
