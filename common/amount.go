package common

import "fmt"

// BitcoinAmount is a quantity of bitcoin denominated in satoshis, the unit
// spec §3 calls btc_amount.
type BitcoinAmount int64

const satoshisPerBTC = 1e8

// BitcoinAmountFromBTC converts a decimal BTC quantity to satoshis.
func BitcoinAmountFromBTC(btc float64) BitcoinAmount {
	return BitcoinAmount(btc * satoshisPerBTC)
}

// ToBTC renders the amount as a decimal BTC quantity, for logging only;
// all arithmetic is done in the integer satoshi domain.
func (a BitcoinAmount) ToBTC() float64 {
	return float64(a) / satoshisPerBTC
}

func (a BitcoinAmount) String() string {
	return fmt.Sprintf("%.8f BTC", a.ToBTC())
}

// MoneroAmount is a quantity of monero denominated in piconero, the unit
// spec §3 calls xmr_amount.
type MoneroAmount uint64

const piconeroPerXMR = 1e12

// MoneroAmountFromXMR converts a decimal XMR quantity to piconero.
func MoneroAmountFromXMR(xmr float64) MoneroAmount {
	return MoneroAmount(xmr * piconeroPerXMR)
}

// ToXMR renders the amount as a decimal XMR quantity, for logging only.
func (a MoneroAmount) ToXMR() float64 {
	return float64(a) / piconeroPerXMR
}

func (a MoneroAmount) String() string {
	return fmt.Sprintf("%.12f XMR", a.ToXMR())
}
