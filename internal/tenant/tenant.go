// Package tenant resolves and validates storefront tenant identifiers.
package tenant

import (
	"errors"
	"net"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/storefront/pkg/errorbank"
)

const contextKey = "tenant"

// ErrInvalid is returned for identifiers that are not a single DNS label.
var ErrInvalid = errors.New("invalid tenant identifier")

// Validate checks that id is a lowercase DNS label (a-z, 0-9, '-', max 63 chars).
func Validate(id string) error {
	if id == "" || len(id) > 63 {
		return ErrInvalid
	}
	if id[0] == '-' || id[len(id)-1] == '-' {
		return ErrInvalid
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return ErrInvalid
		}
	}
	return nil
}

// FromHost takes the first dot-separated label of host (port stripped, lowercased).
func FromHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	label, _, _ := strings.Cut(strings.ToLower(host), ".")
	if err := Validate(label); err != nil {
		return "", err
	}
	return label, nil
}

// Middleware resolves the tenant from the request host and stores it on the echo context.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := FromHost(c.Request().Host)
			if err != nil {
				return errorbank.BadRequest("shop id is required", errorbank.WithCause(err))
			}
			c.Set(contextKey, id)
			return next(c)
		}
	}
}

// FromContext returns the tenant resolved by Middleware.
func FromContext(c echo.Context) (string, bool) {
	id, ok := c.Get(contextKey).(string)
	return id, ok && id != ""
}
