package btc

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/xmrswap/swapd/common"
)

const (
	txVersion = 2

	// finalSequence spends an input with no relative-timelock
	// requirement (tx_redeem, tx_refund): RBF is left enabled (per
	// BIP-125, any Sequence below 0xfffffffe), matching the teacher's
	// treatment of non-CSV spends.
	finalSequence = wire.MaxTxInSequenceNum - 2
)

// LockTx is spec.md's tx_lock: Bob's funding transaction establishing
// the 2-of-2 output the rest of the swap's transaction chain spends
// from. Alice only ever observes this transaction; she never
// constructs or signs it (M2 delivers it to her already built).
type LockTx struct {
	Tx           *wire.MsgTx
	RedeemScript []byte
	OutputIndex  uint32
	Amount       common.BitcoinAmount
}

// FundingOutput returns the P2WSH output a tx_lock candidate must pay
// to hold amount between pubA and pubB: the exact script NewLockTx
// checks incoming transactions against, exported so a tx_lock can be
// constructed against it in the first place (Bob's side of the
// protocol, out of this repo's scope per spec.md, and this package's
// own end-to-end tests, both need the same script without reaching
// into genFundingPkScript directly).
func FundingOutput(pubA, pubB *btcec.PublicKey, amount common.BitcoinAmount) (*wire.TxOut, error) {
	_, out, err := genFundingPkScript(pubA, pubB, int64(amount))
	return out, err
}

// NewLockTx wraps a transaction Bob sent in M2, validating it pays
// amount to the expected 2-of-2 script and locating that output.
func NewLockTx(tx *wire.MsgTx, pubA, pubB *btcec.PublicKey, amount common.BitcoinAmount) (*LockTx, error) {
	redeemScript, expectedOut, err := genFundingPkScript(pubA, pubB, int64(amount))
	if err != nil {
		return nil, err
	}

	idx, ok := findScriptOutputIndex(tx, expectedOut.PkScript)
	if !ok {
		return nil, common.Errorf(common.ProtocolViolation, "", "tx_lock does not pay the expected 2-of-2 output")
	}
	if tx.TxOut[idx].Value != expectedOut.Value {
		return nil, common.Errorf(common.ProtocolViolation, "", "tx_lock output value %d does not match expected %d",
			tx.TxOut[idx].Value, expectedOut.Value)
	}

	return &LockTx{Tx: tx, RedeemScript: redeemScript, OutputIndex: idx, Amount: amount}, nil
}

func (l *LockTx) outPoint() wire.OutPoint {
	return wire.OutPoint{Hash: l.Tx.TxHash(), Index: l.OutputIndex}
}

// spendingTx is the shared shape of tx_redeem, tx_cancel, tx_refund,
// and tx_punish: one input spending the prior transaction's 2-of-2
// output, one output paying a single destination, an optional relative
// timelock on the input, and a digest/AddSignatures pair operating on
// the 2-of-2 witness script (spec.md §4.2).
type spendingTx struct {
	tx           *wire.MsgTx
	redeemScript []byte
	prevOutValue int64
	prevPkScript []byte
	pubA, pubB   *btcec.PublicKey
}

func newSpendingTx(prevOut wire.OutPoint, prevValue int64, prevPkScript, redeemScript []byte,
	pubA, pubB *btcec.PublicKey, destScript []byte, destValue int64, sequence uint32) *spendingTx {

	tx := wire.NewMsgTx(txVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: prevOut,
		Sequence:         sequence,
	})
	tx.AddTxOut(wire.NewTxOut(destValue, destScript))

	return &spendingTx{
		tx:           tx,
		redeemScript: redeemScript,
		prevOutValue: prevValue,
		prevPkScript: prevPkScript,
		pubA:         pubA,
		pubB:         pubB,
	}
}

// Digest returns the BIP-143 witness-program sighash this transaction's
// single input must be signed (or encsigned) over.
func (s *spendingTx) Digest() ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(s.prevPkScript, s.prevOutValue)
	sigHashes := txscript.NewTxSigHashes(s.tx, fetcher)

	digest, err := txscript.CalcWitnessSigHash(
		s.redeemScript, sigHashes, txscript.SigHashAll, s.tx, 0, s.prevOutValue,
	)
	if err != nil {
		return nil, fmt.Errorf("btc: compute sighash: %w", err)
	}
	return digest, nil
}

// AddSignatures attaches both parties' DER+sighash-type-suffixed
// signatures (already over Digest()) to the transaction's witness,
// canonically ordered by genSwapScript's pubkey ordering, and returns
// the finished, broadcastable transaction.
func (s *spendingTx) AddSignatures(sigA, sigB []byte) (*wire.MsgTx, error) {
	s.tx.TxIn[0].Witness = spendSwapWitness(s.redeemScript, s.pubA, sigA, s.pubB, sigB)
	return s.tx, nil
}

// Tx returns the (possibly not yet witnessed) underlying transaction,
// for txid computation prior to broadcast.
func (s *spendingTx) Tx() *wire.MsgTx { return s.tx }

// RedeemTx is spec.md's tx_redeem: spends tx_lock directly to Alice's
// redeem address once she holds both signatures, no timelock.
type RedeemTx struct{ *spendingTx }

// NewRedeemTx builds tx_redeem paying amount (after fee) to destScript.
func NewRedeemTx(lock *LockTx, pubA, pubB *btcec.PublicKey, destScript []byte, amount common.BitcoinAmount) *RedeemTx {
	st := newSpendingTx(lock.outPoint(), int64(lock.Amount), lock.Tx.TxOut[lock.OutputIndex].PkScript,
		lock.RedeemScript, pubA, pubB, destScript, int64(amount), finalSequence)
	return &RedeemTx{st}
}

// CancelTx is spec.md's tx_cancel: spends tx_lock back into a fresh
// 2-of-2 output once the cancel timelock has elapsed since tx_lock
// confirmed.
type CancelTx struct {
	*spendingTx
	RedeemScript []byte
	OutputIndex  uint32
	relativeLock uint32
	outputAmount int64
}

// NewCancelTx builds tx_cancel, re-locking funds into a new 2-of-2
// output (spendable by tx_refund or tx_punish) after cancelTimelock
// blocks of relative depth.
func NewCancelTx(lock *LockTx, pubA, pubB *btcec.PublicKey, cancelTimelock uint32, amount common.BitcoinAmount) (*CancelTx, error) {
	redeemScript, out, err := genFundingPkScript(pubA, pubB, int64(amount))
	if err != nil {
		return nil, err
	}

	st := newSpendingTx(lock.outPoint(), int64(lock.Amount), lock.Tx.TxOut[lock.OutputIndex].PkScript,
		lock.RedeemScript, pubA, pubB, out.PkScript, out.Value, uint32(cancelTimelock))

	return &CancelTx{
		spendingTx:   st,
		RedeemScript: redeemScript,
		OutputIndex:  0,
		relativeLock: cancelTimelock,
		outputAmount: out.Value,
	}, nil
}

func (c *CancelTx) outPoint() wire.OutPoint {
	return wire.OutPoint{Hash: c.tx.TxHash(), Index: c.OutputIndex}
}

// RefundTx is spec.md's tx_refund: spends tx_cancel to Bob's refund
// address, no further timelock. Alice only ever encsigns this — see
// DESIGN.md's invariant note: she never produces a plain signature for
// it herself.
type RefundTx struct{ *spendingTx }

// NewRefundTx builds tx_refund paying amount to Bob's refund script.
func NewRefundTx(cancel *CancelTx, pubA, pubB *btcec.PublicKey, bobRefundScript []byte, amount common.BitcoinAmount) *RefundTx {
	st := newSpendingTx(cancel.outPoint(), cancel.outputAmount, cancel.tx.TxOut[cancel.OutputIndex].PkScript,
		cancel.RedeemScript, pubA, pubB, bobRefundScript, int64(amount), finalSequence)
	return &RefundTx{st}
}

// PunishTx is spec.md's tx_punish: spends tx_cancel to Alice's punish
// address once the punish timelock has elapsed since tx_cancel
// confirmed without a refund appearing.
type PunishTx struct{ *spendingTx }

// NewPunishTx builds tx_punish, timelocked punishTimelock blocks after
// tx_cancel.
func NewPunishTx(cancel *CancelTx, pubA, pubB *btcec.PublicKey, alicePunishScript []byte,
	punishTimelock uint32, amount common.BitcoinAmount) *PunishTx {

	st := newSpendingTx(cancel.outPoint(), cancel.outputAmount, cancel.tx.TxOut[cancel.OutputIndex].PkScript,
		cancel.RedeemScript, pubA, pubB, alicePunishScript, int64(amount), punishTimelock)
	return &PunishTx{st}
}

// Txid returns the transaction's double-SHA256 hash.
func Txid(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}

// ExtractSignatures pulls the two witness signature items back out of a
// broadcast spendingTx witness (tx_cancel, tx_refund, tx_punish, or
// tx_redeem), returning them keyed to pubA/pubB rather than to witness
// position. This is how Alice recovers Bob's signature from a
// published tx_refund she never built herself (spec.md §4.4 step 6):
// the witness ordering is canonical on pubkey bytes (spendSwapWitness),
// so the mapping back to "A's signature"/"B's signature" is
// deterministic regardless of which party broadcast the transaction.
func ExtractSignatures(tx *wire.MsgTx, pubA, pubB *btcec.PublicKey) (sigA, sigB []byte, err error) {
	if len(tx.TxIn) == 0 || len(tx.TxIn[0].Witness) < 2 {
		return nil, nil, fmt.Errorf("btc: transaction %s has no 2-of-2 witness", tx.TxHash())
	}

	witness := tx.TxIn[0].Witness
	aBytes := pubA.SerializeCompressed()
	bBytes := pubB.SerializeCompressed()

	if bytes.Compare(aBytes, bBytes) == -1 {
		sigB, sigA = witness[0], witness[1]
	} else {
		sigA, sigB = witness[0], witness[1]
	}
	return sigA, sigB, nil
}
