// Package florist contains the shared domain records of the service: florist
// tenants, their promotions and their subscribers.
package florist

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, as the web clients send them.
	decimal.MarshalJSONWithoutQuotes = true
}

// Florist is a tenant owning its own promotions and subscriber list.
type Florist struct {
	ID          string    `json:"id" firestore:"-"`
	Name        string    `json:"name" firestore:"name"`
	Slug        string    `json:"slug" firestore:"slug"`
	Email       string    `json:"email" firestore:"email"`
	Phone       string    `json:"phone" firestore:"phone"`
	Address     string    `json:"address" firestore:"address"`
	Description string    `json:"description,omitempty" firestore:"description,omitempty"`
	Active      bool      `json:"is_active" firestore:"is_active"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`

	// Derived from the florist's collections, never persisted.
	SubscriberCount int `json:"subscriber_count" firestore:"-"`
	PromotionCount  int `json:"promotion_count" firestore:"-"`
}

// Contact is the optional contact block printed on a promotion.
type Contact struct {
	Phone   string `json:"phone,omitempty" firestore:"phone,omitempty"`
	Email   string `json:"email,omitempty" firestore:"email,omitempty"`
	Address string `json:"address,omitempty" firestore:"address,omitempty"`
}

// Promotion is a time-bounded discount offer. FloristID is empty in
// single-tenant mode. Prices are exact decimals in currency units.
type Promotion struct {
	ID            string          `json:"id"`
	FloristID     string          `json:"florist_id,omitempty"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Discount      int             `json:"discount"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	EndDate       time.Time       `json:"end_date"`
	Image         string          `json:"image,omitempty"`
	Contact       *Contact        `json:"contact,omitempty"`
	Active        bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Subscriber is a customer who opted into a florist's notifications.
type Subscriber struct {
	ID           string    `json:"id" firestore:"-"`
	FloristID    string    `json:"florist_id,omitempty" firestore:"florist_id"`
	Name         string    `json:"name" firestore:"name"`
	Email        string    `json:"email" firestore:"email"`
	SubscribedAt time.Time `json:"subscribed_at" firestore:"subscribed_at"`
}

// DeriveSlug lower-cases name and replaces every rune outside [a-z0-9]
// with a single '-'. Uniqueness across florists is not checked.
func DeriveSlug(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	return b.String()
}

var hundred = decimal.NewFromInt(100)

// ComputeFinalPrice applies a percentage discount and rounds to cents, half
// away from zero.
func ComputeFinalPrice(originalPrice decimal.Decimal, discount int) decimal.Decimal {
	return originalPrice.Mul(decimal.NewFromInt(int64(100 - discount))).Div(hundred).Round(2)
}

// Reprice recomputes FinalPrice from OriginalPrice and Discount.
func (p *Promotion) Reprice() {
	p.FinalPrice = ComputeFinalPrice(p.OriginalPrice, p.Discount)
}

// IsCurrentlyActive reports whether the promotion is enabled and its
// deadline is strictly after now.
func (p Promotion) IsCurrentlyActive(now time.Time) bool {
	return p.Active && p.EndDate.After(now)
}

// Expired reports whether the promotion's deadline has passed.
func (p Promotion) Expired(now time.Time) bool {
	return !p.EndDate.After(now)
}

// StatusFilter selects promotions by derived status.
type StatusFilter string

const (
	StatusAll     StatusFilter = "all"
	StatusActive  StatusFilter = "active"
	StatusExpired StatusFilter = "expired"
)

// ParseStatusFilter maps a query value to a filter, defaulting to StatusAll.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive
	case StatusExpired:
		return StatusExpired
	default:
		return StatusAll
	}
}

// FilterPromotions returns the promotions matching filter at time now,
// preserving order.
func FilterPromotions(promotions []Promotion, filter StatusFilter, now time.Time) []Promotion {
	out := make([]Promotion, 0, len(promotions))
	for _, p := range promotions {
		switch filter {
		case StatusActive:
			if !p.IsCurrentlyActive(now) {
				continue
			}
		case StatusExpired:
			if !p.Expired(now) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
