package alice

import (
	"bytes"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/fxamacker/cbor/v2"

	"github.com/xmrswap/swapd/chain/btc"
	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/crypto/dleq"
	"github.com/xmrswap/swapd/crypto/monero"
	"github.com/xmrswap/swapd/crypto/secp256k1"
)

// persistedSwap is the on-disk encoding of a Swap: numbered, typed
// fields rather than a direct encoding of the Swap struct, so a future
// field addition doesn't reshuffle a previously written record.
// Decode rejects any key it doesn't recognize (strictDecMode) rather
// than silently dropping it.
type persistedSwap struct {
	ID    []byte `cbor:"1,keyasint"`
	Phase uint8  `cbor:"2,keyasint"`
	Env   uint8  `cbor:"3,keyasint"`

	PrivKey          []byte `cbor:"4,keyasint"`
	CrossCurveScalar []byte `cbor:"5,keyasint"`
	ViewKeyShare     []byte `cbor:"6,keyasint"`
	DLEQProof        []byte `cbor:"7,keyasint"`
	BTCAmount        int64  `cbor:"8,keyasint"`
	XMRAmount        uint64 `cbor:"9,keyasint"`
	CancelTimelock   uint32 `cbor:"10,keyasint"`
	PunishTimelock   uint32 `cbor:"11,keyasint"`
	RedeemAddress    string `cbor:"12,keyasint"`
	PunishAddress    string `cbor:"13,keyasint"`
	XMRSweepAddress  string `cbor:"14,keyasint"`

	B             []byte `cbor:"15,keyasint"`
	SBSecp        []byte `cbor:"16,keyasint"`
	SBEd          []byte `cbor:"17,keyasint"`
	JointView     []byte `cbor:"18,keyasint"`
	RefundAddress string `cbor:"19,keyasint"`

	LockTxBytes       []byte `cbor:"20,keyasint"`
	LockConfirmHeight uint32 `cbor:"21,keyasint"`

	CancelSigAlice []byte `cbor:"22,keyasint"`
	RefundEncSig   []byte `cbor:"23,keyasint"`
	CancelSigBob   []byte `cbor:"24,keyasint"`
	PunishSigBob   []byte `cbor:"25,keyasint"`

	LockProofTxID string `cbor:"26,keyasint"`
	LockProofKey  string `cbor:"27,keyasint"`
	LockFee       uint64 `cbor:"28,keyasint"`

	RedeemEncSig []byte `cbor:"29,keyasint"`

	CancelTxBytes         []byte `cbor:"30,keyasint"`
	PunishTxBytes         []byte `cbor:"31,keyasint"`
	ObservedRefundTxBytes []byte `cbor:"32,keyasint"`
	RecoveredSpendKey     []byte `cbor:"33,keyasint"`
}

var strictDecModeInstance cbor.DecMode

// strictDecMode returns a DecMode that fails decoding on any map key
// persistedSwap doesn't declare, so swapdb.Store.Get surfaces a
// forward-compatibility mismatch as an error instead of quietly
// dropping a future field.
func strictDecMode() (cbor.DecMode, error) {
	if strictDecModeInstance != nil {
		return strictDecModeInstance, nil
	}
	dm, err := cbor.DecOptions{ExtraReturnErrors: cbor.ExtraDecErrorUnknownField}.DecMode()
	if err != nil {
		return nil, err
	}
	strictDecModeInstance = dm
	return dm, nil
}

// Encode serializes s for persistence, per the bbolt-backed
// swapdb.Store's key/value shape (spec.md §6's durability requirement:
// the daemon must resume an in-flight swap after a crash).
func (s *Swap) Encode() ([]byte, error) {
	p := persistedSwap{
		ID:                s.ID.Bytes(),
		Phase:             uint8(s.Phase),
		Env:               uint8(s.Env),
		CrossCurveScalar:  s.CrossCurveScalar[:],
		BTCAmount:         int64(s.BTCAmount),
		XMRAmount:         uint64(s.XMRAmount),
		CancelTimelock:    s.CancelTimelock,
		PunishTimelock:    s.PunishTimelock,
		RedeemAddress:     s.RedeemAddress,
		PunishAddress:     s.PunishAddress,
		XMRSweepAddress:   string(s.XMRSweepAddress),
		RefundAddress:     s.RefundAddress,
		LockConfirmHeight: s.LockConfirmHeight,
		LockProofTxID:     s.LockProofTxID,
		LockProofKey:      s.LockProofKey,
		LockFee:           uint64(s.LockFee),
	}

	if s.Keys != nil {
		scalar := s.Keys.Scalar()
		p.PrivKey = scalar[:]
	}
	if s.ViewKeyShare != nil {
		b := s.ViewKeyShare.Bytes()
		p.ViewKeyShare = b[:]
	}
	if s.DLEQProof != nil {
		proofBytes, err := s.DLEQProof.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("alice: marshal dleq proof: %w", err)
		}
		p.DLEQProof = proofBytes
	}
	if s.B != nil {
		p.B = s.B.SerializeCompressed()
	}
	if s.SBSecp != nil {
		p.SBSecp = s.SBSecp.SerializeCompressed()
	}
	if s.SBEd != nil {
		p.SBEd = s.SBEd.Bytes()
	}
	if s.JointView != nil {
		b := s.JointView.Bytes()
		p.JointView = b[:]
	}
	if s.LockTx != nil {
		b, err := serializeTx(s.LockTx.Tx)
		if err != nil {
			return nil, fmt.Errorf("alice: serialize tx_lock: %w", err)
		}
		p.LockTxBytes = b
	}
	if s.CancelSigAlice != nil {
		p.CancelSigAlice = s.CancelSigAlice.Bytes()
	}
	if s.RefundEncSig != nil {
		p.RefundEncSig = s.RefundEncSig.Bytes()
	}
	if s.CancelSigBob != nil {
		p.CancelSigBob = s.CancelSigBob.Bytes()
	}
	if s.PunishSigBob != nil {
		p.PunishSigBob = s.PunishSigBob.Bytes()
	}
	if s.RedeemEncSig != nil {
		p.RedeemEncSig = s.RedeemEncSig.Bytes()
	}
	if s.CancelTx != nil {
		b, err := serializeTx(s.CancelTx)
		if err != nil {
			return nil, fmt.Errorf("alice: serialize tx_cancel: %w", err)
		}
		p.CancelTxBytes = b
	}
	if s.PunishTx != nil {
		b, err := serializeTx(s.PunishTx)
		if err != nil {
			return nil, fmt.Errorf("alice: serialize tx_punish: %w", err)
		}
		p.PunishTxBytes = b
	}
	if s.ObservedRefundTx != nil {
		b, err := serializeTx(s.ObservedRefundTx)
		if err != nil {
			return nil, fmt.Errorf("alice: serialize observed tx_refund: %w", err)
		}
		p.ObservedRefundTxBytes = b
	}
	if s.RecoveredSpendKey != nil {
		b := s.RecoveredSpendKey.Bytes()
		p.RecoveredSpendKey = b[:]
	}

	return cbor.Marshal(p)
}

// Decode rebuilds a Swap from bytes written by Encode, for
// crash-resume (spec.md §5's suspend/resume requirement).
func Decode(data []byte) (*Swap, error) {
	dm, err := strictDecMode()
	if err != nil {
		return nil, err
	}

	var p persistedSwap
	if err := dm.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("alice: decode persisted swap: %w", err)
	}

	s := &Swap{
		Phase:             Phase(p.Phase),
		Env:               common.Environment(p.Env),
		BTCAmount:         common.BitcoinAmount(p.BTCAmount),
		XMRAmount:         common.MoneroAmount(p.XMRAmount),
		CancelTimelock:    p.CancelTimelock,
		PunishTimelock:    p.PunishTimelock,
		RedeemAddress:     p.RedeemAddress,
		PunishAddress:     p.PunishAddress,
		XMRSweepAddress:   monero.Address(p.XMRSweepAddress),
		RefundAddress:     p.RefundAddress,
		LockConfirmHeight: p.LockConfirmHeight,
		LockProofTxID:     p.LockProofTxID,
		LockProofKey:      p.LockProofKey,
		LockFee:           common.MoneroAmount(p.LockFee),
	}
	copy(s.ID[:], p.ID)
	copy(s.CrossCurveScalar[:], p.CrossCurveScalar)

	if len(p.PrivKey) == 32 {
		var scalar [32]byte
		copy(scalar[:], p.PrivKey)
		s.Keys = secp256k1.FromScalar(scalar)
	}
	if len(p.ViewKeyShare) == 32 {
		var b [32]byte
		copy(b[:], p.ViewKeyShare)
		vk, err := monero.PrivateViewKeyFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("alice: decode view key share: %w", err)
		}
		s.ViewKeyShare = vk
	}
	if len(p.DLEQProof) > 0 {
		proof, err := dleq.UnmarshalProof(p.DLEQProof)
		if err != nil {
			return nil, fmt.Errorf("alice: decode dleq proof: %w", err)
		}
		s.DLEQProof = proof
	}
	if len(p.B) > 0 {
		pub, err := btcec.ParsePubKey(p.B)
		if err != nil {
			return nil, fmt.Errorf("alice: decode B: %w", err)
		}
		s.B = pub
	}
	if len(p.SBSecp) > 0 {
		pub, err := btcec.ParsePubKey(p.SBSecp)
		if err != nil {
			return nil, fmt.Errorf("alice: decode S_b (secp): %w", err)
		}
		s.SBSecp = pub
	}
	if len(p.SBEd) > 0 {
		pt, err := edwards25519.NewIdentityPoint().SetBytes(p.SBEd)
		if err != nil {
			return nil, fmt.Errorf("alice: decode S_b (ed): %w", err)
		}
		s.SBEd = pt
	}
	if len(p.JointView) == 32 {
		var b [32]byte
		copy(b[:], p.JointView)
		vk, err := monero.PrivateViewKeyFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("alice: decode bob's view key share: %w", err)
		}
		s.JointView = vk
	}
	if len(p.CancelSigAlice) > 0 {
		sig, err := secp256k1.SignatureFromBytes(p.CancelSigAlice)
		if err != nil {
			return nil, fmt.Errorf("alice: decode cancel sig (alice): %w", err)
		}
		s.CancelSigAlice = sig
	}
	if len(p.RefundEncSig) > 0 {
		sig, err := secp256k1.EncryptedSignatureFromBytes(p.RefundEncSig)
		if err != nil {
			return nil, fmt.Errorf("alice: decode refund encsig: %w", err)
		}
		s.RefundEncSig = sig
	}
	if len(p.CancelSigBob) > 0 {
		sig, err := secp256k1.SignatureFromBytes(p.CancelSigBob)
		if err != nil {
			return nil, fmt.Errorf("alice: decode cancel sig (bob): %w", err)
		}
		s.CancelSigBob = sig
	}
	if len(p.PunishSigBob) > 0 {
		sig, err := secp256k1.SignatureFromBytes(p.PunishSigBob)
		if err != nil {
			return nil, fmt.Errorf("alice: decode punish sig (bob): %w", err)
		}
		s.PunishSigBob = sig
	}
	if len(p.RedeemEncSig) > 0 {
		sig, err := secp256k1.EncryptedSignatureFromBytes(p.RedeemEncSig)
		if err != nil {
			return nil, fmt.Errorf("alice: decode redeem encsig: %w", err)
		}
		s.RedeemEncSig = sig
	}
	if len(p.RecoveredSpendKey) == 32 {
		var b [32]byte
		copy(b[:], p.RecoveredSpendKey)
		sk, err := monero.PrivateSpendKeyFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("alice: decode recovered spend key: %w", err)
		}
		s.RecoveredSpendKey = sk
	}

	if len(p.LockTxBytes) > 0 {
		if s.Keys == nil || s.B == nil {
			return nil, fmt.Errorf("alice: persisted tx_lock with no keys to rebuild it against")
		}
		tx, err := deserializeTx(p.LockTxBytes)
		if err != nil {
			return nil, fmt.Errorf("alice: decode tx_lock: %w", err)
		}
		lockTx, err := btc.NewLockTx(tx, s.Keys.PublicKey(), s.B, s.BTCAmount)
		if err != nil {
			return nil, fmt.Errorf("alice: rebuild tx_lock: %w", err)
		}
		s.LockTx = lockTx
	}
	if len(p.CancelTxBytes) > 0 {
		tx, err := deserializeTx(p.CancelTxBytes)
		if err != nil {
			return nil, fmt.Errorf("alice: decode tx_cancel: %w", err)
		}
		s.CancelTx = tx
	}
	if len(p.PunishTxBytes) > 0 {
		tx, err := deserializeTx(p.PunishTxBytes)
		if err != nil {
			return nil, fmt.Errorf("alice: decode tx_punish: %w", err)
		}
		s.PunishTx = tx
	}
	if len(p.ObservedRefundTxBytes) > 0 {
		tx, err := deserializeTx(p.ObservedRefundTxBytes)
		if err != nil {
			return nil, fmt.Errorf("alice: decode observed tx_refund: %w", err)
		}
		s.ObservedRefundTx = tx
	}

	return s, nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeTx(b []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}
