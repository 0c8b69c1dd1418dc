package flashsale

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront-gateway/internal/domain"
)

type Phase string

const (
	PhaseUpcoming Phase = "upcoming"
	PhaseActive   Phase = "active"
	PhaseEnded    Phase = "ended"
)

// Countdown counts towards the sale start while upcoming and towards the
// sale end while active.
type Countdown struct {
	Phase            Phase     `json:"phase"`
	Target           time.Time `json:"target"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Display          string    `json:"display"`
}

func Compute(now, start, end time.Time) Countdown {
	var c Countdown
	switch {
	case now.Before(start):
		c.Phase, c.Target = PhaseUpcoming, start
	case now.Before(end):
		c.Phase, c.Target = PhaseActive, end
	default:
		c.Phase, c.Target = PhaseEnded, end
	}

	remaining := c.Target.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	c.RemainingSeconds = int64(remaining / time.Second)
	c.Display = Format(c.RemainingSeconds)
	return c
}

// ForSale is Compute for a sale; a sale switched off by staff reads as ended.
func ForSale(now time.Time, sale *domain.FlashSale) Countdown {
	if sale.IsActive != nil && !*sale.IsActive {
		return Countdown{Phase: PhaseEnded, Target: sale.EndDate, Display: Format(0)}
	}
	return Compute(now, sale.StartDate, sale.EndDate)
}

// Format renders whole seconds as HH:MM:SS. Hours are not wrapped.
func Format(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

// Stream sends the countdown right away and then once per interval. The
// last value sent is the ended countdown; the channel is closed after it or
// when ctx is done.
func Stream(ctx context.Context, sale *domain.FlashSale, interval time.Duration, now func() time.Time) <-chan Countdown {
	out := make(chan Countdown)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			c := ForSale(now(), sale)
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if c.Phase == PhaseEnded {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
