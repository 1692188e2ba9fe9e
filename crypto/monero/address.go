package monero

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/xmrswap/swapd/common"
)

// Address is a base58-encoded standard Monero address string.
type Address string

// networkByte returns the address-prefix byte for a standard
// (non-subaddress, non-integrated) address on env. Values per Monero's
// cryptonote_config.h.
func networkByte(env common.Environment) (byte, error) {
	switch env {
	case common.Mainnet:
		return 18, nil
	case common.Testnet:
		return 53, nil
	case common.Stagenet:
		return 24, nil
	case common.Regtest:
		return 18, nil
	default:
		return 0, fmt.Errorf("monero: unknown environment %d", env)
	}
}

// PrivateKeyPair bundles the two scalars that together control one
// Monero wallet: a spend key (moves funds) and a view key (finds and
// decrypts them). spec.md's joint wallet holds the spend key split
// between Alice and Bob and the view key shared in the clear.
type PrivateKeyPair struct {
	spend *PrivateSpendKey
	view  *PrivateViewKey
}

// NewPrivateKeyPair pairs an existing spend key with a view key.
func NewPrivateKeyPair(spend *PrivateSpendKey, view *PrivateViewKey) *PrivateKeyPair {
	return &PrivateKeyPair{spend: spend, view: view}
}

// SpendKey returns the pair's private spend key.
func (kp *PrivateKeyPair) SpendKey() *PrivateSpendKey { return kp.spend }

// ViewKey returns the pair's private view key.
func (kp *PrivateKeyPair) ViewKey() *PrivateViewKey { return kp.view }

// Address renders the standard address for this keypair on env.
func (kp *PrivateKeyPair) Address(env common.Environment) (Address, error) {
	return NewAddress(kp.spend.PublicKey(), kp.view.PublicKey(), env)
}

// NewAddress encodes a standard Monero address from a public spend key
// and public view key: prefix byte, both 32-byte public keys, and a
// 4-byte Keccak-256 checksum, all base58-encoded in Monero's
// block-of-8-bytes variant (distinct from Bitcoin's base58check).
func NewAddress(spendPub, viewPub *PublicKey, env common.Environment) (Address, error) {
	prefix, err := networkByte(env)
	if err != nil {
		return "", err
	}

	spendBytes := spendPub.Bytes()
	viewBytes := viewPub.Bytes()

	payload := make([]byte, 0, 1+32+32+4)
	payload = append(payload, prefix)
	payload = append(payload, spendBytes[:]...)
	payload = append(payload, viewBytes[:]...)

	checksum := keccak256(payload)
	payload = append(payload, checksum[:4]...)

	return Address(base58MoneroEncode(payload)), nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// monero's base58 alphabet, identical to Bitcoin's but with a distinct
// block-encoding scheme: input is processed in 8-byte blocks (the
// final, possibly short, block separately), each block base58-encoded
// to a fixed width per the table below rather than stripped of leading
// zero-digits the way Bitcoin's base58check is.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var fullBlockSize = 8
var fullEncodedBlockSize = 11
var encodedBlockSizes = []int{0, 2, 3, 5, 6, 7, 9, 10, 11}

func base58MoneroEncode(data []byte) string {
	var out []byte

	for len(data) >= fullBlockSize {
		out = append(out, base58EncodeBlock(data[:fullBlockSize], fullEncodedBlockSize)...)
		data = data[fullBlockSize:]
	}
	if len(data) > 0 {
		out = append(out, base58EncodeBlock(data, encodedBlockSizes[len(data)])...)
	}

	return string(out)
}

func base58EncodeBlock(block []byte, encodedSize int) []byte {
	base := big.NewInt(58)
	num := new(big.Int).SetBytes(block)

	encoded := make([]byte, encodedSize)
	for i := encodedSize - 1; i >= 0; i-- {
		mod := new(big.Int)
		num.DivMod(num, base, mod)
		encoded[i] = base58Alphabet[mod.Int64()]
	}

	return encoded
}
