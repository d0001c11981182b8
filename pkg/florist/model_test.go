package florist_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

func TestDeriveSlug(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Plain words", input: "Fleurs de Marie", expected: "fleurs-de-marie"},
		{name: "Accent and punctuation", input: "Ô Bouquet!", expected: "--bouquet-"},
		{name: "Accent only", input: "Ôbouquet!", expected: "-bouquet-"},
		{name: "Digits kept", input: "Rose 42", expected: "rose-42"},
		{name: "Empty", input: "", expected: ""},
		{name: "Each rune becomes one dash", input: "a--b", expected: "a--b"},
		{name: "Astral rune is one dash", input: "🌸 Fleurs", expected: "--fleurs"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, florist.DeriveSlug(tc.input))
		})
	}

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, florist.DeriveSlug("Le Jardin"), florist.DeriveSlug("Le Jardin"))
	})
}

func TestComputeFinalPrice(t *testing.T) {
	testCases := []struct {
		original string
		discount int
		expected string
	}{
		{original: "20", discount: 25, expected: "15"},
		{original: "29.99", discount: 10, expected: "26.99"},
		{original: "10", discount: 67, expected: "3.3"},
		{original: "10", discount: 90, expected: "1"},
		// Exact product 1.005: cent ties round half away from zero.
		{original: "2.01", discount: 50, expected: "1.01"},
		{original: "0.05", discount: 10, expected: "0.05"},
		{original: "19.90", discount: 33, expected: "13.33"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s minus %d%%", tc.original, tc.discount), func(t *testing.T) {
			got := florist.ComputeFinalPrice(decimal.RequireFromString(tc.original), tc.discount)
			assert.Equal(t, tc.expected, got.String())
			assert.Equal(t, int32(-2), got.Exponent(), "always rounded to cents")
		})
	}
}

func TestPromotion_JSONPrices(t *testing.T) {
	var in florist.PromotionInput
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Roses","original_price":2.01,"discount":50,"end_date":"2026-06-01T00:00:00Z"}`), &in))
	assert.Equal(t, "2.01", in.OriginalPrice.String())

	p := florist.NewPromotion(in, "f-1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(b, &wire))
	assert.Equal(t, 2.01, wire["original_price"], "prices are JSON numbers")
	assert.Equal(t, 1.01, wire["final_price"])
}

func TestPromotion_IsCurrentlyActive(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := florist.NewPromotion(florist.PromotionInput{
		Title:         "Roses",
		OriginalPrice: decimal.NewFromInt(20),
		Discount:      25,
		EndDate:       now.Add(time.Hour),
	}, "", now)

	t.Run("New promotion is active with computed price", func(t *testing.T) {
		assert.True(t, p.Active)
		assert.Equal(t, "15", p.FinalPrice.String())
		assert.True(t, p.IsCurrentlyActive(now))
		assert.False(t, p.Expired(now))
	})

	t.Run("Deadline equal to now is not active", func(t *testing.T) {
		assert.False(t, p.IsCurrentlyActive(p.EndDate))
		assert.True(t, p.Expired(p.EndDate))
	})

	t.Run("Flag off and deadline passed", func(t *testing.T) {
		off := false
		hidden := p
		florist.PromotionPatch{Active: &off}.Apply(&hidden)
		later := now.Add(2 * time.Hour)

		assert.False(t, hidden.IsCurrentlyActive(later))
		assert.False(t, hidden.IsCurrentlyActive(now))
		// Only the flag and the deadline affect the derived status.
		assert.Equal(t, p.FinalPrice, hidden.FinalPrice)
		assert.Equal(t, p.Title, hidden.Title)
	})
}

func TestPromotionPatch_Apply(t *testing.T) {
	now := time.Now()
	p := florist.NewPromotion(florist.PromotionInput{Title: "Tulipes", OriginalPrice: decimal.NewFromInt(40), Discount: 10, EndDate: now.Add(time.Hour)}, "f-1", now)
	require.Equal(t, "36", p.FinalPrice.String())

	price := decimal.NewFromInt(50)
	discount := 20
	florist.PromotionPatch{OriginalPrice: &price}.Apply(&p)
	assert.Equal(t, "45", p.FinalPrice.String())

	florist.PromotionPatch{Discount: &discount}.Apply(&p)
	assert.Equal(t, "40", p.FinalPrice.String())

	assert.True(t, florist.PromotionPatch{}.IsEmpty())
	assert.False(t, florist.PromotionPatch{Discount: &discount}.IsEmpty())
}

func TestFloristPatch(t *testing.T) {
	f := florist.NewFlorist(florist.FloristInput{Name: "Fleurs de Marie", Email: "a@b.fr"}, time.Now())
	require.True(t, f.Active)
	require.Equal(t, "fleurs-de-marie", f.Slug)

	name := "Chez Marie"
	active := false
	patch := florist.FloristPatch{Name: &name, Active: &active}
	patch.Apply(&f)

	assert.Equal(t, "Chez Marie", f.Name)
	assert.Equal(t, "fleurs-de-marie", f.Slug, "slug is derived once at creation")
	assert.False(t, f.Active)
	assert.Equal(t, map[string]any{"name": "Chez Marie", "is_active": false}, patch.Fields())
	assert.Equal(t, []string{"is_active", "name"}, florist.SortedKeys(patch.Fields()))
}

func TestFilterPromotions(t *testing.T) {
	now := time.Now()
	live := florist.NewPromotion(florist.PromotionInput{Title: "live", OriginalPrice: decimal.NewFromInt(1), Discount: 1, EndDate: now.Add(time.Hour)}, "", now)
	hidden := live
	hidden.Title = "hidden"
	hidden.Active = false
	past := live
	past.Title = "past"
	past.EndDate = now.Add(-time.Hour)

	all := []florist.Promotion{live, hidden, past}

	assert.Len(t, florist.FilterPromotions(all, florist.StatusAll, now), 3)

	active := florist.FilterPromotions(all, florist.StatusActive, now)
	require.Len(t, active, 1)
	assert.Equal(t, "live", active[0].Title)

	expired := florist.FilterPromotions(all, florist.StatusExpired, now)
	require.Len(t, expired, 1)
	assert.Equal(t, "past", expired[0].Title)

	assert.Equal(t, florist.StatusActive, florist.ParseStatusFilter(" Active "))
	assert.Equal(t, florist.StatusAll, florist.ParseStatusFilter("bogus"))
}

func TestInputValidation(t *testing.T) {
	end := time.Now().Add(time.Hour)

	assert.NoError(t, florist.FloristInput{Name: "n", Email: "e"}.Validate())
	assert.ErrorIs(t, florist.FloristInput{Email: "e"}.Validate(), florist.ErrInvalidInput)

	assert.NoError(t, florist.PromotionInput{Title: "t", OriginalPrice: decimal.NewFromInt(10), Discount: 90, EndDate: end}.Validate())
	assert.ErrorIs(t, florist.PromotionInput{Title: "t", OriginalPrice: decimal.NewFromInt(10), Discount: 91, EndDate: end}.Validate(), florist.ErrInvalidInput)
	assert.ErrorIs(t, florist.PromotionInput{Title: "t", OriginalPrice: decimal.NewFromInt(0), Discount: 10, EndDate: end}.Validate(), florist.ErrInvalidInput)
	assert.ErrorIs(t, florist.PromotionInput{Title: "t", OriginalPrice: decimal.NewFromInt(10), Discount: 10}.Validate(), florist.ErrInvalidInput)

	assert.ErrorIs(t, florist.SubscriberInput{Name: "x"}.Validate(), florist.ErrInvalidInput)
}
