package order

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/Additional-Code/storefront/internal/dto"
	"github.com/Additional-Code/storefront/internal/entity"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

// maxLineQuantity caps a single checkout line.
const maxLineQuantity = 10000

type lengthRule struct {
	field    string
	value    string
	min, max int
}

// validate checks the request shape. It never touches the database.
func validate(req dto.CheckoutRequest) []errorbank.Violation {
	var violations []errorbank.Violation

	for _, rule := range []lengthRule{
		{"buyerName", req.BuyerName, 2, 100},
		{"buyerAddress", req.BuyerAddress, 5, 255},
		{"buyerPhone", req.BuyerPhone, 8, 20},
		{"buyerNotes", req.BuyerNotes, 0, 255},
	} {
		n := utf8.RuneCountInString(rule.value)
		switch {
		case n < rule.min:
			violations = append(violations, errorbank.Violation{
				Field:   rule.field,
				Message: fmt.Sprintf("must be at least %d characters", rule.min),
			})
		case n > rule.max:
			violations = append(violations, errorbank.Violation{
				Field:   rule.field,
				Message: fmt.Sprintf("must be at most %d characters", rule.max),
			})
		}
	}

	if !slices.Contains(dto.PaymentMethods, req.PaymentMethod) {
		violations = append(violations, errorbank.Violation{
			Field:   "paymentMethod",
			Message: fmt.Sprintf("must be one of %v", dto.PaymentMethods),
		})
	}

	if len(req.Products) == 0 {
		violations = append(violations, errorbank.Violation{Field: "products", Message: "at least one product is required"})
	}
	for i, line := range req.Products {
		if line.ID == "" {
			violations = append(violations, errorbank.Violation{
				Field:   fmt.Sprintf("products[%d].id", i),
				Message: "is required",
			})
		}
		switch {
		case line.Quantity < 1:
			violations = append(violations, errorbank.Violation{
				Field:   fmt.Sprintf("products[%d].quantity", i),
				Message: "must be at least 1",
			})
		case line.Quantity > maxLineQuantity:
			violations = append(violations, errorbank.Violation{
				Field:   fmt.Sprintf("products[%d].quantity", i),
				Message: fmt.Sprintf("must be at most %d", maxLineQuantity),
			})
		}
	}

	return violations
}

// priceLines sums price × quantity over the lines and adds the shipping fee.
// ok is false when any step leaves the int64 range.
func priceLines(lines []dto.CheckoutLine, catalog map[string]entity.Product, shippingFee int64) (price, final int64, ok bool) {
	for _, line := range lines {
		unit, qty := catalog[line.ID].Price, int64(line.Quantity)
		if unit < 0 || qty < 1 || unit > math.MaxInt64/qty {
			return 0, 0, false
		}
		sub := unit * qty
		if sub > math.MaxInt64-price {
			return 0, 0, false
		}
		price += sub
	}
	if shippingFee > math.MaxInt64-price {
		return 0, 0, false
	}
	return price, price + shippingFee, true
}

// distinctIDs returns the product ids of lines in first-seen order.
func distinctIDs(lines []dto.CheckoutLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ID]; ok {
			continue
		}
		seen[line.ID] = struct{}{}
		ids = append(ids, line.ID)
	}
	return ids
}

// paymentStatus derives the initial payment state: cash on delivery is collected
// later, every other method is settled up front.
func paymentStatus(method string) string {
	if method == "COD" {
		return entity.PaymentStatusPending
	}
	return entity.PaymentStatusPaid
}
