package model

import "time"

// DailyAggregate folds one calendar day's records. Total excludes withdrawal
// records; Frozen counts only frozen revenue and never exceeds Total when all
// amounts are non-negative.
type DailyAggregate struct {
	DateKey string
	// Date is midnight (local zero offset) of the day, used for time-window
	// filtering and peak/month formatting.
	Date         time.Time
	Total        float64
	Frozen       float64
	Transactions []TransactionRecord
}

// MonthKey formats the day's month grouping key, e.g. "June 2024".
func (d DailyAggregate) MonthKey() string {
	return d.Date.Format("January 2006")
}

// MonthlyAggregate groups the daily aggregates that survive the active filter
// under one month key. Under the last-7-days filter the single group carries
// the LastSevenDaysKey instead of a month name.
type MonthlyAggregate struct {
	Key    string
	Total  float64
	Frozen float64
	Days   []DailyAggregate
}

// LastSevenDaysKey is the synthetic group key used by the last-7-days filter.
const LastSevenDaysKey = "Last 7 Days"

// Ledger is the full result of folding one page snapshot. It is rebuilt by
// value on every refresh; there is no incremental merge between cycles.
type Ledger struct {
	// Days holds one aggregate per calendar day, in first-appearance order of
	// the snapshot so repeated folds of the same snapshot are identical.
	Days []DailyAggregate
	// Withdrawals is the lifetime withdrawal list in snapshot order.
	Withdrawals []WithdrawalRecord
	// FrozenEntries lists every frozen record with a computed thaw time,
	// candidates for the countdown selection.
	FrozenEntries []ThawCandidate

	TotalRevenue   float64
	TotalFrozen    float64
	TotalWithdrawn float64
}

// Day returns the aggregate for the given date key, or nil.
func (l *Ledger) Day(dateKey string) *DailyAggregate {
	for i := range l.Days {
		if l.Days[i].DateKey == dateKey {
			return &l.Days[i]
		}
	}
	return nil
}
