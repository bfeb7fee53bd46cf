package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/pkg/errorbank"
)

// IDGenerator produces order identifiers. Implementations need not guarantee
// uniqueness; the service checks and retries.
type IDGenerator interface {
	OrderID() string
	OrderCode(now time.Time) string
}

// RandomIDs issues uuid order ids and ORD-YYYYMMDD-NNNN codes with NNNN in 1000..9999.
type RandomIDs struct{}

// OrderID returns a random uuid.
func (RandomIDs) OrderID() string {
	return uuid.NewString()
}

// OrderCode returns a code dated with now's UTC calendar day.
func (RandomIDs) OrderCode(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("20060102"), 1000+rand.IntN(9000))
}

// unique draws from next until exists reports the value unused, giving up after attempts.
func (s *Service) unique(ctx context.Context, tenantID, kind string, next func() string, exists func(context.Context, string, string) (bool, error)) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate := next()
		taken, err := exists(ctx, tenantID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		s.log().Warn("order identifier collision",
			zap.String("tenant", tenantID),
			zap.String("kind", kind),
			zap.String("value", candidate),
			zap.Int("attempt", attempt),
		)
	}
	s.log().Error("order identifier attempts exhausted",
		zap.String("tenant", tenantID),
		zap.String("kind", kind),
		zap.Int("attempts", s.maxAttempts),
	)
	return "", errorbank.Conflict("could not allocate a unique order "+kind,
		errorbank.WithDetail("attempts", s.maxAttempts))
}
