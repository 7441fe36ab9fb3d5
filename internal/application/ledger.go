package application

import (
	"math"
	"sort"
	"time"

	"github.com/analyticspro/walletlens/internal/domain/model"
)

// dateKeyLayout is the host page's calendar-day format.
const dateKeyLayout = "01/02/2006"

// Filter selects the time window a summary is projected over: "all", "last7",
// or an exact month key such as "June 2024".
type Filter string

const (
	FilterAll   Filter = "all"
	FilterLast7 Filter = "last7"
)

// includes reports whether the day falls inside the filter window at the
// given reference time.
func (f Filter) includes(day model.DailyAggregate, now time.Time) bool {
	switch f {
	case FilterAll, "":
		return true
	case FilterLast7:
		return !day.Date.Before(now.AddDate(0, 0, -7))
	default:
		return day.MonthKey() == string(f)
	}
}

// BuildLedger folds extracted records into the per-day/per-month ledger.
// Withdrawal records accumulate into the lifetime withdrawal list with their
// absolute value; every other record accumulates into its day's total (and
// frozen total when frozen) with sign retained. Days keep first-appearance
// order, so folding the same snapshot twice yields identical ledgers.
func BuildLedger(records []model.TransactionRecord) *model.Ledger {
	ledger := &model.Ledger{}
	dayIndex := make(map[string]int)

	for _, rec := range records {
		idx, ok := dayIndex[rec.DateKey]
		if !ok {
			date, err := time.Parse(dateKeyLayout, rec.DateKey)
			if err != nil {
				// The extractor only emits regex-matched date keys; an
				// unparseable one is a record we cannot place on any day.
				continue
			}
			ledger.Days = append(ledger.Days, model.DailyAggregate{DateKey: rec.DateKey, Date: date})
			idx = len(ledger.Days) - 1
			dayIndex[rec.DateKey] = idx
		}
		day := &ledger.Days[idx]

		if rec.Frozen && rec.ThawAt != nil {
			ledger.FrozenEntries = append(ledger.FrozenEntries, model.ThawCandidate{
				ThawAt:  *rec.ThawAt,
				Amount:  rec.Amount,
				DateKey: rec.DateKey,
			})
		}

		if rec.Withdrawal {
			amount := math.Abs(rec.Amount)
			ledger.Withdrawals = append(ledger.Withdrawals, model.WithdrawalRecord{
				DateKey: rec.DateKey,
				Time:    rec.Time,
				Amount:  amount,
			})
			ledger.TotalWithdrawn += amount
		} else {
			day.Total += rec.Amount
			ledger.TotalRevenue += rec.Amount
			if rec.Frozen {
				day.Frozen += rec.Amount
				ledger.TotalFrozen += rec.Amount
			}
		}

		day.Transactions = append(day.Transactions, rec)
	}

	return ledger
}

// SelectThaw picks the frozen entry with the minimum thaw time still in the
// future, or nil when nothing is maturing. Re-selected on every refresh.
func SelectThaw(ledger *model.Ledger, now time.Time) *model.ThawCandidate {
	var soonest *model.ThawCandidate
	for i := range ledger.FrozenEntries {
		entry := &ledger.FrozenEntries[i]
		if !entry.ThawAt.After(now) {
			continue
		}
		if soonest == nil || entry.ThawAt.Before(soonest.ThawAt) {
			soonest = entry
		}
	}
	if soonest == nil {
		return nil
	}
	out := *soonest
	return &out
}

// Summary is the projection of a ledger over one filter window, ready for the
// render layer. Monetary values are coin-denominated; Rate converts them to
// currency at the render boundary.
type Summary struct {
	Filter       Filter
	Revenue      float64
	Frozen       float64
	Available    float64
	DailyAverage float64
	DaysInWindow int

	PeakDate  string
	PeakTotal float64

	Months         []model.MonthlyAggregate
	TotalWithdrawn float64
	NextThaw       *model.ThawCandidate
	Rate           float64

	// Balance carries the host page's own header figures when the snapshot
	// had them. Display values, not derived from the ledger.
	Balance *model.WalletBalance
}

// Summarize projects the ledger over the filter window. Displayed revenue and
// frozen totals cover only the included days; available revenue is clamped at
// zero; the daily average is rounded coins over the window's day count; the
// peak day is the strictly greatest included total with ties keeping the
// first day encountered.
func Summarize(ledger *model.Ledger, filter Filter, now time.Time, rate float64) Summary {
	sum := Summary{
		Filter:         filter,
		TotalWithdrawn: ledger.TotalWithdrawn,
		NextThaw:       SelectThaw(ledger, now),
		Rate:           rate,
	}

	groups := make(map[string]int)

	for _, day := range ledger.Days {
		if !filter.includes(day, now) {
			continue
		}

		sum.Revenue += day.Total
		sum.Frozen += day.Frozen
		sum.DaysInWindow++

		if day.Total > sum.PeakTotal {
			sum.PeakTotal = day.Total
			sum.PeakDate = day.DateKey
		}

		key := day.MonthKey()
		if filter == FilterLast7 {
			key = model.LastSevenDaysKey
		}
		idx, ok := groups[key]
		if !ok {
			sum.Months = append(sum.Months, model.MonthlyAggregate{Key: key})
			idx = len(sum.Months) - 1
			groups[key] = idx
		}
		month := &sum.Months[idx]
		month.Total += day.Total
		month.Frozen += day.Frozen
		month.Days = append(month.Days, day)
	}

	sum.Available = math.Max(0, sum.Revenue-sum.Frozen)
	if sum.DaysInWindow > 0 {
		sum.DailyAverage = math.Round(sum.Revenue / float64(sum.DaysInWindow))
	}

	// Newest first, within each month and across months.
	for i := range sum.Months {
		days := sum.Months[i].Days
		sort.SliceStable(days, func(a, b int) bool {
			return days[a].Date.After(days[b].Date)
		})
	}
	sort.SliceStable(sum.Months, func(a, b int) bool {
		return newestDay(sum.Months[a]).After(newestDay(sum.Months[b]))
	})

	return sum
}

func newestDay(m model.MonthlyAggregate) time.Time {
	if len(m.Days) == 0 {
		return time.Time{}
	}
	return m.Days[0].Date
}
