package secp256k1

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Bytes encodes a Signature as its 33-byte compressed R followed by
// its 32-byte S, for inclusion in net/message's M3/M4/M6 payloads.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, s.R.SerializeCompressed()...)
	sBytes := s.S.Bytes()
	return append(out, sBytes[:]...)
}

// SignatureFromBytes decodes a Signature encoded by Bytes.
func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != 65 {
		return nil, fmt.Errorf("secp256k1: signature must be 65 bytes, got %d", len(b))
	}
	r, err := btcec.ParsePubKey(b[:33])
	if err != nil {
		return nil, fmt.Errorf("secp256k1: parse R: %w", err)
	}
	s := new(btcec.ModNScalar)
	var sBytes [32]byte
	copy(sBytes[:], b[33:])
	s.SetBytes(&sBytes)
	return &Signature{R: r, S: s}, nil
}

// Bytes encodes an EncryptedSignature the same way Signature.Bytes
// does, substituting RPrime for R.
func (e *EncryptedSignature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, e.RPrime.SerializeCompressed()...)
	sBytes := e.S.Bytes()
	return append(out, sBytes[:]...)
}

// EncryptedSignatureFromBytes decodes an EncryptedSignature encoded by
// Bytes.
func EncryptedSignatureFromBytes(b []byte) (*EncryptedSignature, error) {
	if len(b) != 65 {
		return nil, fmt.Errorf("secp256k1: encrypted signature must be 65 bytes, got %d", len(b))
	}
	rPrime, err := btcec.ParsePubKey(b[:33])
	if err != nil {
		return nil, fmt.Errorf("secp256k1: parse RPrime: %w", err)
	}
	s := new(btcec.ModNScalar)
	var sBytes [32]byte
	copy(sBytes[:], b[33:])
	s.SetBytes(&sBytes)
	return &EncryptedSignature{RPrime: rPrime, S: s}, nil
}
