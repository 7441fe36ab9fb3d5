package driven

import "github.com/analyticspro/walletlens/internal/domain/model"

// LedgerExtractor defines the driven port for turning a host page snapshot
// into typed transaction records. The host's markup is an unstable external
// contract; implementations are expected to be defensive (selector/regex
// based, tolerant of missing fields) and to silently skip elements without a
// parseable date. The aggregation layer depends only on this interface so it
// stays testable with synthetic records.
type LedgerExtractor interface {
	Extract(doc []byte) ([]model.TransactionRecord, error)

	// Balance reads the host page's own header figures. Returns (nil, nil)
	// when the snapshot carries no balance header.
	Balance(doc []byte) (*model.WalletBalance, error)
}
