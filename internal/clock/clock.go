// Package clock injects time into the booking and settlement services.
// Refund bands, dispute windows and sweep intervals all branch on the
// current time, so every service takes a Clock instead of calling
// time.Now.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock yields the current UTC time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock (UTC).
func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
