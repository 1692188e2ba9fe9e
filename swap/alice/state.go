// Package alice implements Alice's (the XMR-seller's) side of the
// atomic swap: the append-only state machine of spec.md §4.4 driving a
// single swap through its handshake, lock, redeem, cancel, and punish
// paths.
//
// Grounded on original_source/swap/src/protocol/alice/state.rs's
// AliceState enum and its State0..State6 payload chain. Go has no
// algebraic sum type, so the chain is flattened into one Swap struct
// carrying every field any State0..State6 variant held, gated by a
// Phase discriminant recording how far the swap has progressed — the
// same "one struct, fields populated over its lifetime" shape
// contractcourt's htlcTimeoutResolver uses for its own resolver state,
// generalized here across a longer, branching lifecycle.
package alice

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrswap/swapd/chain/btc"
	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/dleq"
	"github.com/xmrswap/swapd/crypto/monero"
	"github.com/xmrswap/swapd/crypto/secp256k1"
)

// Phase names one of the swap's states. Grounded field-for-field on
// state.rs's AliceState variants (its 12 named cases; spec.md's "13
// variants" count is treated per DESIGN.md as inclusive of the
// terminal zero-value, not an extra named state).
type Phase uint8

const (
	PhaseStarted Phase = iota
	PhaseBtcLocked
	PhaseXmrLocked
	PhaseEncSigLearned
	PhaseBtcRedeemed
	PhaseCancelTimelockExpired
	PhaseBtcCancelled
	PhaseBtcRefunded
	PhaseBtcPunishable
	PhaseBtcPunished
	PhaseXmrRefunded
	PhaseSafelyAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseBtcLocked:
		return "btc_locked"
	case PhaseXmrLocked:
		return "xmr_locked"
	case PhaseEncSigLearned:
		return "enc_sig_learned"
	case PhaseBtcRedeemed:
		return "btc_redeemed"
	case PhaseCancelTimelockExpired:
		return "cancel_timelock_expired"
	case PhaseBtcCancelled:
		return "btc_cancelled"
	case PhaseBtcRefunded:
		return "btc_refunded"
	case PhaseBtcPunishable:
		return "btc_punishable"
	case PhaseBtcPunished:
		return "btc_punished"
	case PhaseXmrRefunded:
		return "xmr_refunded"
	case PhaseSafelyAborted:
		return "safely_aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether p is one of the four states spec.md §4.4
// names terminal: BtcRedeemed, BtcPunished, XmrRefunded, SafelyAborted.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseBtcRedeemed, PhaseBtcPunished, PhaseXmrRefunded, PhaseSafelyAborted:
		return true
	default:
		return false
	}
}

// Swap holds one in-flight swap's complete state. Only the fields a
// given Phase's originating Rust State0..State6 struct would have held
// are meaningful at that phase; earlier fields remain populated
// (append-only construction) even once superseded.
type Swap struct {
	ID    common.SwapID
	Phase Phase
	Env   common.Environment

	// State0: Alice's own keys, generated before any message exchange.
	Keys           *secp256k1.Keypair
	CrossCurveScalar [32]byte
	ViewKeyShare   *monero.PrivateViewKey
	DLEQProof      *dleq.Proof
	BTCAmount      common.BitcoinAmount
	XMRAmount      common.MoneroAmount
	CancelTimelock uint32
	PunishTimelock uint32
	RedeemAddress  string
	PunishAddress  string

	// XMRSweepAddress is Alice's own Monero address to receive the
	// joint output's funds if she recovers s_b via the refund path
	// (spec.md §4.4 step 6). It never crosses the wire; it's local
	// operator configuration, supplied at swap creation like
	// RedeemAddress/PunishAddress are for the Bitcoin side.
	XMRSweepAddress monero.Address

	// State1: learned from M0.
	B             *btcec.PublicKey
	SBSecp        *btcec.PublicKey
	SBEd          *edwards25519.Point
	JointView     *monero.PrivateViewKey
	RefundAddress string

	// State2: learned from M2.
	LockTx *btc.LockTx

	// BtcLocked: the height at which tx_lock first reached
	// bitcoin_finality_confirmations, the reference point both
	// cancel_timelock and (transitively, via tx_cancel's own
	// confirmation) punish_timelock are measured from.
	LockConfirmHeight uint32

	// State3: produced locally for M3 and sent to Bob. CancelSigAlice
	// is Alice's own plain signature over tx_cancel; RefundEncSig is
	// the encrypted signature over tx_refund under S_b that spec.md §3
	// requires her to emit (never a unilateral plain signature on
	// tx_refund). Retained so the refund-sweep path (step 6) can run
	// Recover without recomputing the encsig after a crash-resume.
	CancelSigAlice *secp256k1.Signature
	RefundEncSig   *secp256k1.EncryptedSignature

	// State3 (continued): learned from M4 (Bob's signatures,
	// DLEQ-verified already at receipt).
	CancelSigBob *secp256k1.Signature
	PunishSigBob *secp256k1.Signature

	// State5: produced locally after the XMR transfer (step 1).
	LockProofTxID string
	LockProofKey  string
	LockFee       common.MoneroAmount

	// State6: learned from M6.
	RedeemEncSig *secp256k1.EncryptedSignature

	// CancelTimelockExpired/BtcCancelled branch: the broadcast tx_cancel.
	CancelTx *wire.MsgTx

	// BtcPunishable branch: the broadcast tx_punish.
	PunishTx *wire.MsgTx

	// BtcRefunded: the published tx_refund Alice observed, and the
	// Monero spend key she reconstructed by recovering s_b from it via
	// adaptor-signature recovery.
	ObservedRefundTx  *wire.MsgTx
	RecoveredSpendKey *monero.PrivateSpendKey
}

// SpendPublicKey returns Alice's half of the joint Monero spend key,
// S_a = s_a·G_ed, derived from the same cross-curve scalar the DLEQ
// proof binds to her secp256k1 point.
func (s *Swap) SpendPublicKey() (*monero.PublicKey, error) {
	sk, err := monero.PrivateSpendKeyFromSwapScalar(s.CrossCurveScalar)
	if err != nil {
		return nil, err
	}
	return sk.PublicKey(), nil
}

// JointSpendPublicKey returns S = S_a + S_b, the one-time address's
// spend component.
func (s *Swap) JointSpendPublicKey() (*monero.PublicKey, error) {
	sA, err := s.SpendPublicKey()
	if err != nil {
		return nil, err
	}
	var sBBytes [32]byte
	copy(sBBytes[:], s.SBEd.Bytes())
	sB, err := monero.PublicKeyFromBytes(sBBytes)
	if err != nil {
		return nil, err
	}
	return monero.SumPublicKeys(sA, sB), nil
}

// JointViewKey returns v = v_a + v_b, computed once Bob's share has
// arrived in M0.
func (s *Swap) JointViewKey() *monero.PrivateViewKey {
	return monero.SumPrivateViewKeys(s.ViewKeyShare, s.JointView)
}

// NewSwapParams bundles the inputs a new swap is created from: the
// terms both parties already agreed on out of band (spec.md §1 "no
// built-in price discovery" — amounts and timelocks are inputs), plus
// Alice's own local addresses.
type NewSwapParams struct {
	Env            common.Environment
	BTCAmount      common.BitcoinAmount
	XMRAmount      common.MoneroAmount
	CancelTimelock uint32
	PunishTimelock uint32
	RedeemAddress  string
	PunishAddress  string
	XMRSweepAddress monero.Address
}

// NewSwap creates a fresh Swap in PhaseStarted: draws Alice's Bitcoin
// keypair and cross-curve scalar, derives her Monero view-key share
// and DLEQ proof, and assigns a random swap id. Mirrors
// original_source/state.rs's State0::new.
func NewSwap(p NewSwapParams) (*Swap, error) {
	if p.CancelTimelock >= p.PunishTimelock {
		return nil, common.Errorf(common.Fatal, "", "cancel_timelock (%d) must be < punish_timelock (%d)",
			p.CancelTimelock, p.PunishTimelock)
	}

	keys, err := secp256k1.Generate()
	if err != nil {
		return nil, fmt.Errorf("alice: generate bitcoin keypair: %w", err)
	}

	var scalar [32]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return nil, fmt.Errorf("alice: draw cross-curve scalar: %w", err)
	}
	// Clamp the scalar below dleq.NumBits() so it sits below both
	// curve orders, per spec.md §9's "the lesser order dominates".
	scalar[0] &= 0x0f

	viewKey, err := monero.NewPrivateViewKey()
	if err != nil {
		return nil, fmt.Errorf("alice: generate view key share: %w", err)
	}

	proof, err := dleq.Prove(scalar)
	if err != nil {
		return nil, fmt.Errorf("alice: prove dleq: %w", err)
	}

	return &Swap{
		ID:              common.NewSwapID(),
		Phase:           PhaseStarted,
		Env:             p.Env,
		Keys:            keys,
		CrossCurveScalar: scalar,
		ViewKeyShare:    viewKey,
		DLEQProof:       proof,
		BTCAmount:       p.BTCAmount,
		XMRAmount:       p.XMRAmount,
		CancelTimelock:  p.CancelTimelock,
		PunishTimelock:  p.PunishTimelock,
		RedeemAddress:   p.RedeemAddress,
		PunishAddress:   p.PunishAddress,
		XMRSweepAddress: p.XMRSweepAddress,
	}, nil
}

// transition advances s to phase, logging the move the way spec.md §7
// requires user-visible failures to be reported: tagged with the
// swap id.
func (s *Swap) transition(phase Phase) *Swap {
	log.Infof("swap_id=%s %s -> %s", s.ID, s.Phase, phase)
	s.Phase = phase
	return s
}
