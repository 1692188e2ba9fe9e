package message

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/xmrswap/swapd/crypto/dleq"
	"github.com/xmrswap/swapd/crypto/monero"
)

// BobKeys is M0: Bob's public key material plus the cross-curve DLEQ
// proof binding his Monero spend-key share to his Bitcoin refund
// point, and his refund address.
type BobKeys struct {
	PubKey     []byte `cbor:"1,keyasint"`
	SpendSecp  []byte `cbor:"2,keyasint"`
	SpendEd    []byte `cbor:"3,keyasint"`
	ViewKey    []byte `cbor:"4,keyasint"`
	Proof      []byte `cbor:"5,keyasint"`
	RefundAddr string `cbor:"6,keyasint"`
}

// NewBobKeys builds M0 from domain types.
func NewBobKeys(pub *btcec.PublicKey, spendSecp *btcec.PublicKey, spendEd *edwards25519.Point,
	view *monero.PrivateViewKey, proof *dleq.Proof, refundAddr string) (*BobKeys, error) {

	proofBytes, err := proof.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("message: marshal M0 proof: %w", err)
	}

	viewBytes := view.Bytes()

	return &BobKeys{
		PubKey:     pub.SerializeCompressed(),
		SpendSecp:  spendSecp.SerializeCompressed(),
		SpendEd:    spendEd.Bytes(),
		ViewKey:    viewBytes[:],
		Proof:      proofBytes,
		RefundAddr: refundAddr,
	}, nil
}

func (m *BobKeys) MsgType() Type { return TypeBobKeys }

func (m *BobKeys) String() string {
	return fmt.Sprintf("BobKeys refund_addr=%s proof_len=%d", m.RefundAddr, len(m.Proof))
}

// B returns Bob's Bitcoin public key.
func (m *BobKeys) B() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(m.PubKey)
}

// SSecp returns Bob's claimed secp256k1 DLEQ point.
func (m *BobKeys) SSecp() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(m.SpendSecp)
}

// SEd returns Bob's claimed ed25519 DLEQ point.
func (m *BobKeys) SEd() (*edwards25519.Point, error) {
	p, err := edwards25519.NewIdentityPoint().SetBytes(m.SpendEd)
	if err != nil {
		return nil, fmt.Errorf("message: decode M0 ed25519 point: %w", err)
	}
	return p, nil
}

// V returns Bob's Monero view key share.
func (m *BobKeys) V() (*monero.PrivateViewKey, error) {
	if len(m.ViewKey) != 32 {
		return nil, fmt.Errorf("message: M0 view key must be 32 bytes, got %d", len(m.ViewKey))
	}
	var b [32]byte
	copy(b[:], m.ViewKey)
	return monero.PrivateViewKeyFromBytes(b)
}

// DLEQProof decodes π(s_b).
func (m *BobKeys) DLEQProof() (*dleq.Proof, error) {
	return dleq.UnmarshalProof(m.Proof)
}

// AliceKeys is M1: Alice's mirror of M0, carrying her redeem and
// punish addresses instead of a single refund address.
type AliceKeys struct {
	PubKey     []byte `cbor:"1,keyasint"`
	SpendSecp  []byte `cbor:"2,keyasint"`
	SpendEd    []byte `cbor:"3,keyasint"`
	ViewKey    []byte `cbor:"4,keyasint"`
	Proof      []byte `cbor:"5,keyasint"`
	RedeemAddr string `cbor:"6,keyasint"`
	PunishAddr string `cbor:"7,keyasint"`
}

// NewAliceKeys builds M1 from domain types.
func NewAliceKeys(pub *btcec.PublicKey, spendSecp *btcec.PublicKey, spendEd *edwards25519.Point,
	view *monero.PrivateViewKey, proof *dleq.Proof, redeemAddr, punishAddr string) (*AliceKeys, error) {

	proofBytes, err := proof.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("message: marshal M1 proof: %w", err)
	}

	viewBytes := view.Bytes()

	return &AliceKeys{
		PubKey:     pub.SerializeCompressed(),
		SpendSecp:  spendSecp.SerializeCompressed(),
		SpendEd:    spendEd.Bytes(),
		ViewKey:    viewBytes[:],
		Proof:      proofBytes,
		RedeemAddr: redeemAddr,
		PunishAddr: punishAddr,
	}, nil
}

func (m *AliceKeys) MsgType() Type { return TypeAliceKeys }

func (m *AliceKeys) String() string {
	return fmt.Sprintf("AliceKeys redeem_addr=%s punish_addr=%s proof_len=%d",
		m.RedeemAddr, m.PunishAddr, len(m.Proof))
}

// A returns Alice's Bitcoin public key.
func (m *AliceKeys) A() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(m.PubKey)
}

// SSecp returns Alice's claimed secp256k1 DLEQ point.
func (m *AliceKeys) SSecp() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(m.SpendSecp)
}

// SEd returns Alice's claimed ed25519 DLEQ point.
func (m *AliceKeys) SEd() (*edwards25519.Point, error) {
	p, err := edwards25519.NewIdentityPoint().SetBytes(m.SpendEd)
	if err != nil {
		return nil, fmt.Errorf("message: decode M1 ed25519 point: %w", err)
	}
	return p, nil
}

// V returns Alice's Monero view key share.
func (m *AliceKeys) V() (*monero.PrivateViewKey, error) {
	if len(m.ViewKey) != 32 {
		return nil, fmt.Errorf("message: M1 view key must be 32 bytes, got %d", len(m.ViewKey))
	}
	var b [32]byte
	copy(b[:], m.ViewKey)
	return monero.PrivateViewKeyFromBytes(b)
}

// DLEQProof decodes π(s_a).
func (m *AliceKeys) DLEQProof() (*dleq.Proof, error) {
	return dleq.UnmarshalProof(m.Proof)
}
