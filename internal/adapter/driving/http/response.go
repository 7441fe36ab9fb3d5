package httphandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/analyticspro/walletlens/internal/application"
	"github.com/analyticspro/walletlens/internal/domain/model"
)

// descPolicy strips any markup that survived extraction from the untrusted
// host page. Descriptions are re-rendered into a page by API consumers, so
// they must leave here inert.
var descPolicy = bluemonday.StrictPolicy()

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// SessionResponse reports the session state and the message of the most
// recent forced logout, if any.
type SessionResponse struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// LoginRequest is the JSON body of the direct exchange endpoint.
type LoginRequest struct {
	Email      string `json:"email"`
	LicenseKey string `json:"license_key"`
}

// DelegatedCompleteRequest is the completion signal relayed from the
// delegated OAuth browsing context.
type DelegatedCompleteRequest struct {
	Type    string `json:"type"`
	Token   string `json:"token"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SnapshotResponse acknowledges an ingested snapshot.
type SnapshotResponse struct {
	ID string `json:"id"`
}

// MoneyResponse pairs a coin-denominated total with its currency value at the
// fixed conversion rate, rendered to two decimal places.
type MoneyResponse struct {
	Coins float64 `json:"coins"`
	USD   string  `json:"usd"`
}

// TransactionResponse is the JSON representation of one extracted record.
type TransactionResponse struct {
	Time        string  `json:"time"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Frozen      bool    `json:"frozen"`
	Withdrawal  bool    `json:"withdrawal"`
	ThawAt      string  `json:"thaw_at,omitempty"`
}

// DayResponse is the JSON representation of a daily aggregate.
type DayResponse struct {
	Date         string                `json:"date"`
	Total        MoneyResponse         `json:"total"`
	Frozen       MoneyResponse         `json:"frozen"`
	Transactions []TransactionResponse `json:"transactions"`
}

// MonthResponse is the JSON representation of a monthly grouping.
type MonthResponse struct {
	Key    string        `json:"key"`
	Total  MoneyResponse `json:"total"`
	Frozen MoneyResponse `json:"frozen"`
	Days   []DayResponse `json:"days"`
}

// ThawResponse is the JSON representation of the freeze countdown.
type ThawResponse struct {
	Target     string  `json:"target"`
	Amount     float64 `json:"amount"`
	Days       int     `json:"days"`
	Hours      int     `json:"hours"`
	Minutes    int     `json:"minutes"`
	Seconds    int     `json:"seconds"`
	Processing bool    `json:"processing"`
}

// SummaryResponse is the full dashboard projection for one filter window.
type SummaryResponse struct {
	Filter       string          `json:"filter"`
	Revenue      MoneyResponse   `json:"revenue"`
	Frozen       MoneyResponse   `json:"frozen"`
	Available    MoneyResponse   `json:"available"`
	DailyAverage MoneyResponse   `json:"daily_average"`
	DaysInWindow int             `json:"days_in_window"`
	PeakDate     string          `json:"peak_date,omitempty"`
	PeakTotal    MoneyResponse   `json:"peak_total"`
	Withdrawn    MoneyResponse   `json:"withdrawn"`
	Months       []MonthResponse `json:"months"`
	NextThaw     *ThawResponse   `json:"next_thaw,omitempty"`

	// Header figures scraped from the page itself, absent when the snapshot
	// carried no balance header.
	WalletBalance  *MoneyResponse `json:"wallet_balance,omitempty"`
	WalletEarnings *MoneyResponse `json:"wallet_earnings,omitempty"`
}

// WithdrawalResponse is one entry of the lifetime withdrawal list.
type WithdrawalResponse struct {
	Date   string        `json:"date"`
	Time   string        `json:"time"`
	Amount MoneyResponse `json:"amount"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toMoney(coins, rate float64) MoneyResponse {
	return MoneyResponse{Coins: coins, USD: fmt.Sprintf("%.2f", coins*rate)}
}

func toTransactionResponse(rec model.TransactionRecord) TransactionResponse {
	resp := TransactionResponse{
		Time:        to12Hour(rec.Time),
		Description: strings.TrimSpace(descPolicy.Sanitize(rec.Description)),
		Amount:      rec.Amount,
		Frozen:      rec.Frozen,
		Withdrawal:  rec.Withdrawal,
	}
	if rec.ThawAt != nil {
		resp.ThawAt = rec.ThawAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toDayResponse(day model.DailyAggregate, rate float64) DayResponse {
	txns := make([]TransactionResponse, 0, len(day.Transactions))
	for _, rec := range day.Transactions {
		txns = append(txns, toTransactionResponse(rec))
	}

	return DayResponse{
		Date:         day.DateKey,
		Total:        toMoney(day.Total, rate),
		Frozen:       toMoney(day.Frozen, rate),
		Transactions: txns,
	}
}

func toSummaryResponse(sum application.Summary, countdown *application.CountdownStatus) SummaryResponse {
	months := make([]MonthResponse, 0, len(sum.Months))
	for _, month := range sum.Months {
		days := make([]DayResponse, 0, len(month.Days))
		for _, day := range month.Days {
			days = append(days, toDayResponse(day, sum.Rate))
		}
		months = append(months, MonthResponse{
			Key:    month.Key,
			Total:  toMoney(month.Total, sum.Rate),
			Frozen: toMoney(month.Frozen, sum.Rate),
			Days:   days,
		})
	}

	resp := SummaryResponse{
		Filter:       string(sum.Filter),
		Revenue:      toMoney(sum.Revenue, sum.Rate),
		Frozen:       toMoney(sum.Frozen, sum.Rate),
		Available:    toMoney(sum.Available, sum.Rate),
		DailyAverage: toMoney(sum.DailyAverage, sum.Rate),
		DaysInWindow: sum.DaysInWindow,
		PeakDate:     sum.PeakDate,
		PeakTotal:    toMoney(sum.PeakTotal, sum.Rate),
		Withdrawn:    toMoney(sum.TotalWithdrawn, sum.Rate),
		Months:       months,
	}

	if countdown != nil {
		resp.NextThaw = toThawResponse(*countdown)
	}
	if sum.Balance != nil {
		balance := toMoney(sum.Balance.Coins, sum.Rate)
		earnings := toMoney(sum.Balance.Earnings, sum.Rate)
		resp.WalletBalance = &balance
		resp.WalletEarnings = &earnings
	}
	return resp
}

func toThawResponse(status application.CountdownStatus) *ThawResponse {
	return &ThawResponse{
		Target:     status.Target.UTC().Format(time.RFC3339),
		Amount:     status.Amount,
		Days:       status.Remaining.Days,
		Hours:      status.Remaining.Hours,
		Minutes:    status.Remaining.Minutes,
		Seconds:    status.Remaining.Seconds,
		Processing: status.Remaining.Processing,
	}
}

func toWithdrawalResponse(rec model.WithdrawalRecord, rate float64) WithdrawalResponse {
	return WithdrawalResponse{
		Date:   rec.DateKey,
		Time:   to12Hour(rec.Time),
		Amount: toMoney(rec.Amount, rate),
	}
}

// to12Hour formats an HH:MM token in the host page's 12-hour display form.
// Unparseable input passes through unchanged.
func to12Hour(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}
