package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy is the settlement policy: the timing windows and refund bands the
// booking and settlement paths consult. It is hot-reloadable from
// settlement.yml so operations can tune windows without a redeploy.
// Cancellation-policy values snapshotted onto a booking at checkout are NOT
// re-read from here afterwards.
type Policy struct {
	DisputeWindowHours        int `mapstructure:"disputeWindowHours"`
	PendingPaymentTimeoutHrs  int `mapstructure:"pendingPaymentTimeoutHours"`
	DefaultCancellationHours  int `mapstructure:"defaultCancellationHours"`
	PartialRefundFloorHours   int `mapstructure:"partialRefundFloorHours"`
	PartialRefundPercent      int `mapstructure:"partialRefundPercent"`
	RefundRetryThresholdMin   int `mapstructure:"refundRetryThresholdMinutes"`
	BusinessHoursStart        int `mapstructure:"businessHoursStart"`
	BusinessHoursEnd          int `mapstructure:"businessHoursEnd"`
}

func DefaultPolicy() Policy {
	return Policy{
		DisputeWindowHours:       48,
		PendingPaymentTimeoutHrs: 4,
		DefaultCancellationHours: 24,
		PartialRefundFloorHours:  2,
		PartialRefundPercent:     50,
		RefundRetryThresholdMin:  60,
		BusinessHoursStart:       9,
		BusinessHoursEnd:         18,
	}
}

func (p Policy) DisputeWindow() time.Duration {
	return time.Duration(p.DisputeWindowHours) * time.Hour
}

func (p Policy) PendingPaymentTimeout() time.Duration {
	return time.Duration(p.PendingPaymentTimeoutHrs) * time.Hour
}

func (p Policy) RefundRetryThreshold() time.Duration {
	return time.Duration(p.RefundRetryThresholdMin) * time.Minute
}

// InBusinessHours reports whether t (UTC) falls inside the configured window.
func (p Policy) InBusinessHours(t time.Time) bool {
	hour := t.UTC().Hour()
	return hour >= p.BusinessHoursStart && hour < p.BusinessHoursEnd
}

// PolicyHolder exposes the current policy behind an atomic so readers never
// observe a partially applied reload.
type PolicyHolder struct {
	current atomic.Value
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/mentorhive")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MENTORHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := DefaultPolicy()
	if fileFound {
		if err := v.UnmarshalKey("policy", &cfg); err != nil {
			return nil, err
		}
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := DefaultPolicy()
			if err := v.UnmarshalKey("policy", &updated); err != nil {
				log.Printf("[settlement-policy] reload failed: %v", err)
				return
			}
			if err := validatePolicy(updated); err != nil {
				log.Printf("[settlement-policy] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[settlement-policy] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticPolicyHolder wraps a fixed policy, for tests.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	if p.DisputeWindowHours <= 0 {
		return errors.New("policy.disputeWindowHours must be positive")
	}
	if p.PendingPaymentTimeoutHrs <= 0 {
		return errors.New("policy.pendingPaymentTimeoutHours must be positive")
	}
	if p.PartialRefundPercent < 0 || p.PartialRefundPercent > 100 {
		return errors.New("policy.partialRefundPercent out of range")
	}
	if p.BusinessHoursStart < 0 || p.BusinessHoursEnd > 24 || p.BusinessHoursStart >= p.BusinessHoursEnd {
		return errors.New("policy.businessHours window invalid")
	}
	return nil
}
