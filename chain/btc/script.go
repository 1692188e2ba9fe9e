// Package btc builds the five Bitcoin transactions spec.md §4.2
// requires (tx_lock, tx_cancel, tx_refund, tx_punish, tx_redeem) and the
// poll-tolerant chain-observer and wallet interfaces spec.md §4.3/§6
// define around them.
//
// Grounded on lnwallet/script_utils.go's witnessScriptHash/
// genMultiSigScript/spendMultiSig shape for P2WSH script construction
// and canonical pubkey/signature ordering, adapted from
// OP_CHECKMULTISIG (ECDSA) to an AND-of-two-CHECKSIG script because
// spec.md §4.1's adaptor signatures are Schnorr-style and don't satisfy
// OP_CHECKMULTISIG's ECDSA verifier — see DESIGN.md.
package btc

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func chainHash256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// witnessScriptHash wraps redeemScript in a version-0 P2WSH output
// script. Identical in shape to lnwallet.witnessScriptHash.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	scriptHash := chainHash256(redeemScript)

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	bldr.AddData(scriptHash[:])
	return bldr.Script()
}

// genSwapScript builds the 2-of-2 redeem script spent by every
// transaction in the swap's chain (tx_redeem, tx_cancel, tx_refund,
// tx_punish): both signatures are required, canonical-pubkey-ordered so
// both parties independently construct the identical script and sign
// the same digest, per spec.md §4.2's determinism requirement.
func genSwapScript(pubA, pubB *btcec.PublicKey) ([]byte, error) {
	aBytes := pubA.SerializeCompressed()
	bBytes := pubB.SerializeCompressed()

	first, second := aBytes, bBytes
	if bytes.Compare(aBytes, bBytes) == -1 {
		first, second = bBytes, aBytes
	}

	bldr := txscript.NewScriptBuilder()
	bldr.AddData(first)
	bldr.AddOp(txscript.OP_CHECKSIGVERIFY)
	bldr.AddData(second)
	bldr.AddOp(txscript.OP_CHECKSIG)
	return bldr.Script()
}

// genFundingPkScript returns the redeem script and matching P2WSH
// txOut for a 2-of-2 output holding amt satoshis.
func genFundingPkScript(pubA, pubB *btcec.PublicKey, amt int64) ([]byte, *wire.TxOut, error) {
	if amt <= 0 {
		return nil, nil, fmt.Errorf("btc: funding amount must be positive, got %d", amt)
	}

	redeemScript, err := genSwapScript(pubA, pubB)
	if err != nil {
		return nil, nil, err
	}

	pkScript, err := witnessScriptHash(redeemScript)
	if err != nil {
		return nil, nil, err
	}

	return redeemScript, wire.NewTxOut(amt, pkScript), nil
}

// spendSwapWitness assembles the witness stack for the 2-of-2
// AND-of-CHECKSIG script: signatures ordered to match genSwapScript's
// canonical pubkey ordering, per spec.md §4.2.
func spendSwapWitness(redeemScript []byte, pubA *btcec.PublicKey, sigA []byte, pubB *btcec.PublicKey, sigB []byte) wire.TxWitness {
	aBytes := pubA.SerializeCompressed()
	bBytes := pubB.SerializeCompressed()

	witness := make(wire.TxWitness, 3)
	if bytes.Compare(aBytes, bBytes) == -1 {
		witness[0] = sigB
		witness[1] = sigA
	} else {
		witness[0] = sigA
		witness[1] = sigB
	}
	witness[2] = redeemScript
	return witness
}

func findScriptOutputIndex(tx *wire.MsgTx, script []byte) (uint32, bool) {
	for i, txOut := range tx.TxOut {
		if bytes.Equal(txOut.PkScript, script) {
			return uint32(i), true
		}
	}
	return 0, false
}
