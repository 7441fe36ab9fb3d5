// Package wallet implements the LedgerExtractor port over snapshots of the
// host wallet page's rendered markup.
package wallet

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/analyticspro/walletlens/internal/domain/model"
	"github.com/analyticspro/walletlens/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LedgerExtractor = (*Extractor)(nil)

// freezeWindow is how long a frozen amount stays locked after its
// UTC-normalized timestamp.
const freezeWindow = 30 * 24 * time.Hour

// Selectors locates the transaction list inside the host markup. The host's
// class names are hashed CSS-module identifiers that change between builds,
// so the defaults match by stable substring rather than exact class.
type Selectors struct {
	Container    string
	Item         string
	Time         string
	Description  string
	Amount       string
	FrozenMarker string
	Balance      string
	Earnings     string
}

// DefaultSelectors returns selectors for the wallet page as currently shipped.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:    "div[class*='listBox']",
		Item:         "div[class*='listItem']",
		Time:         "[class*='itemTime']",
		Description:  "[class*='itemDes']",
		Amount:       "[class*='itemBR'] span",
		FrozenMarker: "freezeItem",
		Balance:      "[class*='gemsBalance']",
		Earnings:     "[class*='gemsEarnings']",
	}
}

var (
	dateRe   = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	timeRe   = regexp.MustCompile(`\d{2}:\d{2}`)
	offsetRe = regexp.MustCompile(`UTC([+-]\d+(?:\.\d+)?)`)
	amountRe = regexp.MustCompile(`[^+0-9.\-]`)
)

// Extractor parses transaction-like elements out of page snapshots. The
// markup is an external contract owned by the host page and treated as
// unstable: every field is matched defensively and elements without a date
// token are skipped outright.
type Extractor struct {
	sel Selectors
}

// NewExtractor creates an Extractor with the given selectors.
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// Extract parses the snapshot into transaction records, in document order.
func (e *Extractor) Extract(doc []byte) ([]model.TransactionRecord, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	records := []model.TransactionRecord{}
	root.Find(e.sel.Container).Find(e.sel.Item).Each(func(_ int, item *goquery.Selection) {
		if rec, ok := e.extractItem(item); ok {
			records = append(records, rec)
		}
	})

	return records, nil
}

// Balance reads the page's own header figures. Returns (nil, nil) when
// neither balance node is present in the snapshot.
func (e *Extractor) Balance(doc []byte) (*model.WalletBalance, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	balanceNode := root.Find(e.sel.Balance).First()
	earningsNode := root.Find(e.sel.Earnings).First()
	if balanceNode.Length() == 0 && earningsNode.Length() == 0 {
		return nil, nil
	}

	return &model.WalletBalance{
		Coins:    parseAmount(balanceNode.Text()),
		Earnings: parseAmount(earningsNode.Text()),
	}, nil
}

// extractItem parses a single list element. ok is false when the element has
// no date token, the one field a record cannot exist without.
func (e *Extractor) extractItem(item *goquery.Selection) (model.TransactionRecord, bool) {
	timeText := item.Find(e.sel.Time).First().Text()

	dateKey := dateRe.FindString(timeText)
	if dateKey == "" {
		return model.TransactionRecord{}, false
	}

	timeStr := timeRe.FindString(timeText)
	if timeStr == "" {
		timeStr = "00:00"
	}

	offset := 0.0
	if m := offsetRe.FindStringSubmatch(timeText); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			offset = v
		}
	}

	desc := strings.TrimSpace(item.Find(e.sel.Description).First().Text())
	if desc == "" {
		desc = "Revenue"
	}

	rec := model.TransactionRecord{
		DateKey:     dateKey,
		Time:        timeStr,
		Description: desc,
		Amount:      sumAmounts(item.Find(e.sel.Amount)),
		Frozen:      e.isFrozen(item),
		Withdrawal:  strings.Contains(desc, "Withdrawal"),
	}

	if rec.Frozen {
		if thaw, ok := thawTime(dateKey, timeStr, offset); ok {
			rec.ThawAt = &thaw
		}
	}

	return rec, true
}

// isFrozen checks the dedicated marker class and falls back to the literal
// word "Frozen" anywhere in the element text.
func (e *Extractor) isFrozen(item *goquery.Selection) bool {
	if class, ok := item.Attr("class"); ok && strings.Contains(class, e.sel.FrozenMarker) {
		return true
	}
	return strings.Contains(item.Text(), "Frozen")
}

// sumAmounts adds up every parseable numeric fragment in the amount nodes.
func sumAmounts(amounts *goquery.Selection) float64 {
	var total float64
	amounts.Each(func(_ int, s *goquery.Selection) {
		total += parseAmount(s.Text())
	})
	return total
}

// parseAmount strips a text fragment to sign/digit/point characters and
// parses it; fragments that still fail to parse are zero.
func parseAmount(text string) float64 {
	cleaned := amountRe.ReplaceAllString(text, "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// thawTime computes the absolute maturity time of a frozen entry: the local
// date+time shifted to UTC by the host-reported offset, plus the 30-day
// freeze window. Fractional offsets (UTC+5.5) are honored to the minute.
func thawTime(dateKey, timeStr string, offset float64) (time.Time, bool) {
	day, err := time.Parse("01/02/2006", dateKey)
	if err != nil {
		return time.Time{}, false
	}

	parts := strings.SplitN(timeStr, ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, false
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, false
	}

	totalMinutes := hours*60 + mins - int(math.Round(offset*60))
	utc := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC).
		Add(time.Duration(totalMinutes) * time.Minute)

	return utc.Add(freezeWindow), true
}
