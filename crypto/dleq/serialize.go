package dleq

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"
)

// perBitSize is the fixed-width encoding of one bitProof plus its pair
// of commitments: two compressed secp256k1 points (33 bytes each), two
// compressed ed25519 points (32 bytes each) for the OR-proof's R0/R1,
// two 16-byte sub-challenges, four secp scalars (32 bytes each), two
// ed scalars (32 bytes each), plus the bit's own commitSecp (33) and
// commitEd (32).
const perBitSize = 33 + 33 + 32 + 32 + 16 + 16 + 32 + 32 + 32 + 32 + 33 + 32

// MarshalBinary encodes the proof as a fixed-width concatenation of
// per-bit records followed by the two aggregated blinding scalars. M1
// carries this over the wire alongside the two DLEQ-bound public
// points (spec.md §4.4's M0/M1 payloads).
func (p *Proof) MarshalBinary() ([]byte, error) {
	if len(p.bits) != numBits || len(p.commitSecp) != numBits || len(p.commitEd) != numBits {
		return nil, fmt.Errorf("dleq: cannot marshal malformed proof")
	}

	out := make([]byte, 0, numBits*perBitSize+64)
	for i := 0; i < numBits; i++ {
		bp := p.bits[i]
		out = append(out, bp.r0Secp.SerializeCompressed()...)
		out = append(out, bp.r1Secp.SerializeCompressed()...)
		out = append(out, bp.r0Ed.Bytes()...)
		out = append(out, bp.r1Ed.Bytes()...)
		out = append(out, bp.c0[:]...)
		out = append(out, bp.c1[:]...)
		out = append(out, scalarSecpBytes(bp.z0Secp)...)
		out = append(out, scalarSecpBytes(bp.z1Secp)...)
		out = append(out, bp.z0Ed.Bytes()...)
		out = append(out, bp.z1Ed.Bytes()...)
		out = append(out, p.commitSecp[i].SerializeCompressed()...)
		out = append(out, p.commitEd[i].Bytes()...)
	}
	out = append(out, scalarSecpBytes(p.rSecp)...)
	out = append(out, p.rEd.Bytes()...)

	return out, nil
}

// UnmarshalProof decodes a proof produced by MarshalBinary.
func UnmarshalProof(data []byte) (*Proof, error) {
	expected := numBits*perBitSize + 64
	if len(data) != expected {
		return nil, fmt.Errorf("dleq: expected %d bytes, got %d", expected, len(data))
	}

	p := &Proof{
		commitSecp: make([]*btcec.PublicKey, numBits),
		commitEd:   make([]*edwards25519.Point, numBits),
		bits:       make([]*bitProof, numBits),
	}

	r := &byteReader{data: data}
	for i := 0; i < numBits; i++ {
		bp := &bitProof{}

		var err error
		if bp.r0Secp, err = r.secpPoint(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: r0Secp: %w", i, err)
		}
		if bp.r1Secp, err = r.secpPoint(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: r1Secp: %w", i, err)
		}
		if bp.r0Ed, err = r.edPoint(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: r0Ed: %w", i, err)
		}
		if bp.r1Ed, err = r.edPoint(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: r1Ed: %w", i, err)
		}
		copy(bp.c0[:], r.take(16))
		copy(bp.c1[:], r.take(16))
		bp.z0Secp = secpScalarFromBytes(r.take(32))
		bp.z1Secp = secpScalarFromBytes(r.take(32))
		if bp.z0Ed, err = r.edScalar(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: z0Ed: %w", i, err)
		}
		if bp.z1Ed, err = r.edScalar(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: z1Ed: %w", i, err)
		}
		if p.commitSecp[i], err = r.secpPoint(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: commitSecp: %w", i, err)
		}
		if p.commitEd[i], err = r.edPoint(); err != nil {
			return nil, fmt.Errorf("dleq: bit %d: commitEd: %w", i, err)
		}

		p.bits[i] = bp
	}

	p.rSecp = secpScalarFromBytes(r.take(32))
	rEd, err := r.edScalar()
	if err != nil {
		return nil, fmt.Errorf("dleq: rEd: %w", err)
	}
	p.rEd = rEd

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

func scalarSecpBytes(s *btcec.ModNScalar) []byte {
	b := s.Bytes()
	return b[:]
}

type byteReader struct {
	data []byte
	pos  int
	err  error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("dleq: unexpected end of proof data")
		return make([]byte, n)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *byteReader) secpPoint() (*btcec.PublicKey, error) {
	b := r.take(33)
	if r.err != nil {
		return nil, r.err
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse secp256k1 point: %w", err)
	}
	return pub, nil
}

func (r *byteReader) edPoint() (*edwards25519.Point, error) {
	b := r.take(32)
	if r.err != nil {
		return nil, r.err
	}
	p, err := edwards25519.NewIdentityPoint().SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("parse ed25519 point: %w", err)
	}
	return p, nil
}

func (r *byteReader) edScalar() (*edwards25519.Scalar, error) {
	b := r.take(32)
	if r.err != nil {
		return nil, r.err
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("parse ed25519 scalar: %w", err)
	}
	return s, nil
}
