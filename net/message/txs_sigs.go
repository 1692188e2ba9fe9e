package message

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/xmrswap/swapd/crypto/secp256k1"
)

// LockTx is M2: Bob's partial tx_lock, funded and signed on his own
// inputs but not yet broadcast. Alice uses it only to locate the
// 2-of-2 output and never signs it herself (tx_lock spends Bob's
// UTXOs alone).
type LockTx struct {
	TxBytes []byte `cbor:"1,keyasint"`
}

// NewLockTx builds M2 from a serialized tx_lock.
func NewLockTx(tx *wire.MsgTx) (*LockTx, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("message: serialize M2 tx_lock: %w", err)
	}
	return &LockTx{TxBytes: buf.Bytes()}, nil
}

func (m *LockTx) MsgType() Type { return TypeLockTx }

func (m *LockTx) String() string {
	return fmt.Sprintf("LockTx len=%d", len(m.TxBytes))
}

// Tx decodes the carried tx_lock.
func (m *LockTx) Tx() (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(m.TxBytes)); err != nil {
		return nil, fmt.Errorf("message: decode M2 tx_lock: %w", err)
	}
	return tx, nil
}

// AliceSigs is M3: Alice's encrypted signature over tx_refund (under
// Bob's Bitcoin point) and her plain signature over tx_cancel.
type AliceSigs struct {
	RefundEncSig []byte `cbor:"1,keyasint"`
	CancelSig    []byte `cbor:"2,keyasint"`
}

// NewAliceSigs builds M3 from domain types.
func NewAliceSigs(refundEncSig *secp256k1.EncryptedSignature, cancelSig *secp256k1.Signature) *AliceSigs {
	return &AliceSigs{
		RefundEncSig: refundEncSig.Bytes(),
		CancelSig:    cancelSig.Bytes(),
	}
}

func (m *AliceSigs) MsgType() Type { return TypeAliceSigs }

func (m *AliceSigs) String() string {
	return fmt.Sprintf("AliceSigs encsig_len=%d cancel_sig_len=%d", len(m.RefundEncSig), len(m.CancelSig))
}

// EncSig decodes Alice's encrypted signature over tx_refund.
func (m *AliceSigs) EncSig() (*secp256k1.EncryptedSignature, error) {
	return secp256k1.EncryptedSignatureFromBytes(m.RefundEncSig)
}

// CancelSig decodes Alice's plain signature over tx_cancel.
func (m *AliceSigs) CancelSigValue() (*secp256k1.Signature, error) {
	return secp256k1.SignatureFromBytes(m.CancelSig)
}

// BobSigs is M4: Bob's plain signatures over tx_cancel and tx_punish.
// At receipt, spec.md §4.4 requires Alice to verify both against `B`
// and the canonical digests, aborting to SafelyAborted on failure.
type BobSigs struct {
	CancelSig []byte `cbor:"1,keyasint"`
	PunishSig []byte `cbor:"2,keyasint"`
}

// NewBobSigs builds M4 from domain types.
func NewBobSigs(cancelSig, punishSig *secp256k1.Signature) *BobSigs {
	return &BobSigs{
		CancelSig: cancelSig.Bytes(),
		PunishSig: punishSig.Bytes(),
	}
}

func (m *BobSigs) MsgType() Type { return TypeBobSigs }

func (m *BobSigs) String() string {
	return fmt.Sprintf("BobSigs cancel_sig_len=%d punish_sig_len=%d", len(m.CancelSig), len(m.PunishSig))
}

// CancelSigValue decodes Bob's signature over tx_cancel.
func (m *BobSigs) CancelSigValue() (*secp256k1.Signature, error) {
	return secp256k1.SignatureFromBytes(m.CancelSig)
}

// PunishSigValue decodes Bob's signature over tx_punish.
func (m *BobSigs) PunishSigValue() (*secp256k1.Signature, error) {
	return secp256k1.SignatureFromBytes(m.PunishSig)
}

// LockProof is M5: Alice's proof that she transferred xmr_amount to
// the joint one-time address, sent without waiting for confirmation
// (spec.md §9's documented open question / intentional limitation).
type LockProof struct {
	TxID    string `cbor:"1,keyasint"`
	TxKey   string `cbor:"2,keyasint"`
	Address string `cbor:"3,keyasint"`
}

// NewLockProof builds M5. txKey is the Monero private transaction key
// wallet-rpc returns from a transfer call, the standard way a Monero
// sender proves a payment without revealing their whole wallet.
func NewLockProof(txID, txKey, address string) *LockProof {
	return &LockProof{TxID: txID, TxKey: txKey, Address: address}
}

func (m *LockProof) MsgType() Type { return TypeLockProof }

func (m *LockProof) String() string {
	return fmt.Sprintf("LockProof tx_id=%s address=%s", m.TxID, m.Address)
}

// RedeemEncSig is M6: Bob's encrypted signature over tx_redeem, bound
// to Alice's cross-curve adaptor point S_a_secp rather than her plain
// Bitcoin point A. Publishing the decrypted signature therefore lets
// Bob run recover(S_a_secp, sig, encsig) to learn s_a and claim the
// Monero side — the mechanism spec.md §3/§4.4 relies on for the happy
// path's atomicity, mirroring how tx_refund's encsig is bound to S_b
// for the refund path.
type RedeemEncSig struct {
	EncSig []byte `cbor:"1,keyasint"`
}

// NewRedeemEncSig builds M6 from a domain type.
func NewRedeemEncSig(encsig *secp256k1.EncryptedSignature) *RedeemEncSig {
	return &RedeemEncSig{EncSig: encsig.Bytes()}
}

func (m *RedeemEncSig) MsgType() Type { return TypeRedeemEncSig }

func (m *RedeemEncSig) String() string {
	return fmt.Sprintf("RedeemEncSig len=%d", len(m.EncSig))
}

// EncSigValue decodes Bob's encrypted signature over tx_redeem.
func (m *RedeemEncSig) EncSigValue() (*secp256k1.EncryptedSignature, error) {
	return secp256k1.EncryptedSignatureFromBytes(m.EncSig)
}
