package common

import (
	"fmt"
	"time"
)

// ExecutionParams bundles the per-network configurable values spec.md
// §6 names: confirmation depths, the two Bitcoin relative timelocks,
// and Bob's wall-clock grace period to get tx_lock into the mempool
// after the handshake completes.
type ExecutionParams struct {
	// BitcoinFinalityConfirmations is the confirmation depth tx_lock
	// must reach before Alice considers it safe to fund the Monero
	// side (spec.md §3's "confirmed on chain" spendability condition).
	BitcoinFinalityConfirmations uint32

	// BitcoinCancelTimelock is T1: the relative block-height offset
	// from tx_lock's confirmation after which tx_cancel becomes
	// spendable.
	BitcoinCancelTimelock uint32

	// BitcoinPunishTimelock is T2: the relative block-height offset
	// from tx_cancel's confirmation after which tx_punish becomes
	// spendable.
	BitcoinPunishTimelock uint32

	// BobTimeToAct bounds how long Alice waits, after completing M4,
	// to observe tx_lock appear in the mempool before aborting to
	// SafelyAborted (spec.md §5).
	BobTimeToAct time.Duration

	// MoneroFinalityConfirmations is carried for operator visibility
	// and for a future wait-for-confirmation policy; per spec.md §9's
	// documented open question, the lockXMR step does not currently
	// block on it before sending M5.
	MoneroFinalityConfirmations uint32
}

// Validate enforces the invariant spec.md §3/§8 requires of the two
// timelocks (cancel_timelock < punish_timelock) plus the minimum
// finality depth of spec.md §6 ("integer >= 1").
func (p ExecutionParams) Validate() error {
	if p.BitcoinFinalityConfirmations < 1 {
		return fmt.Errorf("bitcoin_finality_confirmations must be >= 1, got %d", p.BitcoinFinalityConfirmations)
	}
	if p.BitcoinCancelTimelock >= p.BitcoinPunishTimelock {
		return fmt.Errorf("bitcoin_cancel_timelock (%d) must be < bitcoin_punish_timelock (%d)",
			p.BitcoinCancelTimelock, p.BitcoinPunishTimelock)
	}
	if p.BobTimeToAct <= 0 {
		return fmt.Errorf("bob_time_to_act must be positive, got %s", p.BobTimeToAct)
	}
	return nil
}

// DefaultTestnetParams mirrors the values used throughout spec.md §8's
// end-to-end scenarios (T1=T2=10 is overridden per-scenario; these are
// sane standalone defaults for a long-running testnet daemon).
func DefaultTestnetParams() ExecutionParams {
	return ExecutionParams{
		BitcoinFinalityConfirmations: 1,
		BitcoinCancelTimelock:        12,
		BitcoinPunishTimelock:        24,
		BobTimeToAct:                 30 * time.Minute,
		MoneroFinalityConfirmations:  10,
	}
}

// DefaultMainnetParams widens the testnet defaults to depths
// appropriate for real funds.
func DefaultMainnetParams() ExecutionParams {
	return ExecutionParams{
		BitcoinFinalityConfirmations: 3,
		BitcoinCancelTimelock:        144,
		BitcoinPunishTimelock:        288,
		BobTimeToAct:                 time.Hour,
		MoneroFinalityConfirmations:  10,
	}
}
