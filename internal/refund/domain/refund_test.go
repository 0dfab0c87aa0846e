package domain

import (
	"testing"
	"time"

	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/money"
	"github.com/stretchr/testify/assert"
)

func TestComputeRefundBands(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	policy := config.DefaultPolicy()

	cases := []struct {
		name   string
		in     ComputeInput
		expect money.Amount
	}{
		{
			name: "mentor cancellation refunds in full regardless of timing",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(30 * time.Minute),
				CancellationHours: 24,
				CancelledByMentor: true,
				Now:               now,
			},
			expect: 10000,
		},
		{
			name: "student cancels outside the notice window",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(48 * time.Hour),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 10000,
		},
		{
			name: "student cancels exactly at the notice boundary",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(24 * time.Hour),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 10000,
		},
		{
			name: "student cancels inside the window gets half",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(12 * time.Hour),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 5000,
		},
		{
			name: "half refund rounds to the nearest minor unit",
			in: ComputeInput{
				Amount:            10001,
				ScheduledAt:       now.Add(12 * time.Hour),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 5001,
		},
		{
			name: "one hour before the session refunds nothing",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(1 * time.Hour),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 0,
		},
		{
			name: "exactly at the floor still gets half",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(2 * time.Hour),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 5000,
		},
		{
			name: "session already started refunds nothing",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(-10 * time.Minute),
				CancellationHours: 24,
				Now:               now,
			},
			expect: 0,
		},
		{
			name: "longer custom notice window widens the full-refund band",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(50 * time.Hour),
				CancellationHours: 48,
				Now:               now,
			},
			expect: 10000,
		},
		{
			name: "custom notice window shrinks to partial sooner",
			in: ComputeInput{
				Amount:            10000,
				ScheduledAt:       now.Add(40 * time.Hour),
				CancellationHours: 48,
				Now:               now,
			},
			expect: 5000,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Compute(tc.in, policy))
		})
	}
}
