package florist

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput wraps every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// FloristInput carries the admin-supplied fields of a new florist.
type FloristInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
}

func (in FloristInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return nil
}

// NewFlorist builds an active florist record with its slug derived from the name.
func NewFlorist(in FloristInput, now time.Time) Florist {
	return Florist{
		Name:        in.Name,
		Slug:        DeriveSlug(in.Name),
		Email:       in.Email,
		Phone:       in.Phone,
		Address:     in.Address,
		Description: in.Description,
		Active:      true,
		CreatedAt:   now,
	}
}

// FloristPatch is a partial update; nil fields are left untouched.
// Renaming a florist does not re-derive its slug.
type FloristPatch struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Address     *string `json:"address,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"is_active,omitempty"`
}

func (p FloristPatch) Apply(f *Florist) {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Email != nil {
		f.Email = *p.Email
	}
	if p.Phone != nil {
		f.Phone = *p.Phone
	}
	if p.Address != nil {
		f.Address = *p.Address
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Active != nil {
		f.Active = *p.Active
	}
}

// Fields returns the set fields keyed by their stored column name.
func (p FloristPatch) Fields() map[string]any {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Email != nil {
		fields["email"] = *p.Email
	}
	if p.Phone != nil {
		fields["phone"] = *p.Phone
	}
	if p.Address != nil {
		fields["address"] = *p.Address
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Active != nil {
		fields["is_active"] = *p.Active
	}
	return fields
}

// PromotionInput carries the florist-supplied fields of a new promotion.
type PromotionInput struct {
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Discount      int             `json:"discount"`
	EndDate       time.Time       `json:"end_date"`
	Image         string          `json:"image,omitempty"`
	Contact       *Contact        `json:"contact,omitempty"`
}

// Validate applies the form rules of the promotion editor. Stores do not
// call it.
func (in PromotionInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.OriginalPrice.Sign() <= 0 {
		return fmt.Errorf("%w: original_price must be positive", ErrInvalidInput)
	}
	if in.Discount < 1 || in.Discount > 90 {
		return fmt.Errorf("%w: discount must be between 1 and 90", ErrInvalidInput)
	}
	if in.EndDate.IsZero() {
		return fmt.Errorf("%w: end_date is required", ErrInvalidInput)
	}
	return nil
}

// NewPromotion builds an active promotion stamped with now.
func NewPromotion(in PromotionInput, floristID string, now time.Time) Promotion {
	p := Promotion{
		FloristID:     floristID,
		Title:         in.Title,
		Description:   in.Description,
		OriginalPrice: in.OriginalPrice,
		Discount:      in.Discount,
		EndDate:       in.EndDate,
		Image:         in.Image,
		Contact:       in.Contact,
		Active:        true,
		CreatedAt:     now,
	}
	p.Reprice()
	return p
}

// PromotionPatch is a partial update; nil fields are left untouched.
type PromotionPatch struct {
	Title         *string          `json:"title,omitempty"`
	Description   *string          `json:"description,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Discount      *int             `json:"discount,omitempty"`
	EndDate       *time.Time       `json:"end_date,omitempty"`
	Image         *string          `json:"image,omitempty"`
	Contact       *Contact         `json:"contact,omitempty"`
	Active        *bool            `json:"is_active,omitempty"`
}

// Apply merges the patch into p and recomputes the final price.
func (pp PromotionPatch) Apply(p *Promotion) {
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.OriginalPrice != nil {
		p.OriginalPrice = *pp.OriginalPrice
	}
	if pp.Discount != nil {
		p.Discount = *pp.Discount
	}
	if pp.EndDate != nil {
		p.EndDate = *pp.EndDate
	}
	if pp.Image != nil {
		p.Image = *pp.Image
	}
	if pp.Contact != nil {
		c := *pp.Contact
		p.Contact = &c
	}
	if pp.Active != nil {
		p.Active = *pp.Active
	}
	p.Reprice()
}

// IsEmpty reports whether the patch sets no field.
func (pp PromotionPatch) IsEmpty() bool {
	return pp == PromotionPatch{}
}

// SubscriberInput carries the customer-supplied fields of a subscription.
type SubscriberInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (in SubscriberInput) Validate() error {
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return nil
}

// NewSubscriber builds a subscriber stamped with now.
func NewSubscriber(in SubscriberInput, floristID string, now time.Time) Subscriber {
	return Subscriber{
		FloristID:    floristID,
		Name:         in.Name,
		Email:        in.Email,
		SubscribedAt: now,
	}
}

// SortedKeys returns the keys of fields in lexical order, so that generated
// statements are stable.
func SortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
