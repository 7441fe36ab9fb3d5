package model

// WalletBalance is the host page's own header figures: the current coin
// balance and the lifetime earnings total. They are display values scraped
// as-is, not derived from the transaction list.
type WalletBalance struct {
	Coins    float64
	Earnings float64
}
