package commerce

import (
	"strconv"
	"strings"
)

// Order is the normalized view of a shop order, whatever shape the API
// returned it in.
type Order struct {
	ID     string
	Number string
	// Statuses collects every status-ish string found in the payload,
	// lowercased: top-level status fields plus nested payment and
	// transaction statuses.
	Statuses []string
	// SettledAt is the first non-empty settlement timestamp found.
	SettledAt string
	Amount    float64
	Items     []Item
}

type Item struct {
	ProductID string
	SKU       string
	Title     string
	Price     float64
}

var paidVocabulary = []string{
	"paid", "captured", "authorized", "settled", "fulfilled", "shipped", "completed",
}

var negativeVocabulary = []string{
	"cancelled", "canceled", "refunded", "refund", "voided", "chargeback", "disputed",
	"failed", "expired", "unpaid",
}

// statusHasWord matches vocabulary entries against whole words of the
// status only. "unpaid" and "unfulfilled" must never hit "paid" and
// "fulfilled", while compounds like "partially_refunded" still match.
func statusHasWord(status string, vocab []string) bool {
	words := strings.FieldsFunc(strings.ToLower(status), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, w := range words {
		for _, v := range vocab {
			if w == v {
				return true
			}
		}
	}
	return false
}

// Paid applies the layered paid heuristics: any cancellation, refund or
// failure signal wins over everything; otherwise an explicit paid-like
// status, then a settlement timestamp, then (weakest) a positive amount.
func (o *Order) Paid() bool {
	if o == nil {
		return false
	}
	for _, s := range o.Statuses {
		if statusHasWord(s, negativeVocabulary) {
			return false
		}
	}
	for _, s := range o.Statuses {
		if statusHasWord(s, paidVocabulary) {
			return true
		}
	}
	if strings.TrimSpace(o.SettledAt) != "" {
		return true
	}
	return o.Amount > 0
}

// NormalizeOrder folds one decoded JSON order object into an Order.
// Unknown fields are ignored; known fields are probed under every key
// name observed across shop API versions. Returns nil when the object
// carries no usable identity.
func NormalizeOrder(obj map[string]any) *Order {
	if obj == nil {
		return nil
	}

	o := &Order{
		ID:     str(obj, "id", "order_id", "unique_key"),
		Number: str(obj, "number", "order_number", "display_id"),
	}
	if o.ID == "" && o.Number == "" {
		return nil
	}

	// Status fields appear top-level or under payment/transaction objects.
	for _, key := range []string{"status", "payment_status", "financial_status", "fulfillment_status", "state"} {
		if v := str(obj, key); v != "" {
			o.Statuses = append(o.Statuses, strings.ToLower(v))
		}
	}
	if pay, ok := obj["payment"].(map[string]any); ok {
		if v := str(pay, "status", "state"); v != "" {
			o.Statuses = append(o.Statuses, strings.ToLower(v))
		}
		if o.SettledAt == "" {
			o.SettledAt = str(pay, "paid_at", "settled_at", "captured_at")
		}
		if o.Amount == 0 {
			o.Amount = num(pay, "amount", "total")
		}
	}
	if o.SettledAt == "" {
		o.SettledAt = str(obj, "paid_at", "settled_at")
	}
	for _, key := range []string{"transactions", "payments"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			tx, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if v := str(tx, "status", "state"); v != "" {
				o.Statuses = append(o.Statuses, strings.ToLower(v))
			}
			if o.SettledAt == "" {
				o.SettledAt = str(tx, "settled_at", "paid_at", "processed_at")
			}
		}
	}

	if o.Amount == 0 {
		o.Amount = num(obj, "total", "total_price", "amount", "total_amount")
	}

	for _, key := range []string{"items", "line_items", "products"} {
		list, ok := obj[key].([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			it, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			o.Items = append(o.Items, Item{
				ProductID: str(it, "product_id", "item_id", "id"),
				SKU:       str(it, "sku", "variant_sku"),
				Title:     str(it, "title", "name", "product_name"),
				Price:     num(it, "price", "amount"),
			})
		}
		if len(o.Items) > 0 {
			break
		}
	}

	return o
}

// str returns the first non-empty string value among keys.
// Numeric ids are rendered back to their literal form.
func str(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// num returns the first usable numeric value among keys; shop APIs send
// amounts both as numbers and as strings.
func num(obj map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case float64:
			if v != 0 {
				return v
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}
