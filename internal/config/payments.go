package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PaymentPolicy carries the business rules that operators tune without a deploy.
type PaymentPolicy struct {
	Currency         string        `mapstructure:"currency"`
	RefundWindow     time.Duration `mapstructure:"refundWindow"`
	GatewayTimeout   time.Duration `mapstructure:"gatewayTimeout"`
	PayoutLockTTL    time.Duration `mapstructure:"payoutLockTTL"`
	PayoutLockWait   time.Duration `mapstructure:"payoutLockWait"`
	WebhookTolerance time.Duration `mapstructure:"webhookTolerance"`
	ReplayStaleAfter time.Duration `mapstructure:"replayStaleAfter"`
}

func DefaultPaymentPolicy() PaymentPolicy {
	return PaymentPolicy{
		Currency:         "usd",
		RefundWindow:     14 * 24 * time.Hour,
		GatewayTimeout:   10 * time.Second,
		PayoutLockTTL:    30 * time.Second,
		PayoutLockWait:   5 * time.Second,
		WebhookTolerance: 5 * time.Minute,
		ReplayStaleAfter: 15 * time.Minute,
	}
}

type PaymentPolicyHolder struct {
	current atomic.Value // holds PaymentPolicy
}

// NewStaticPaymentPolicyHolder returns a holder that never reloads.
func NewStaticPaymentPolicyHolder(policy PaymentPolicy) *PaymentPolicyHolder {
	holder := &PaymentPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPaymentPolicyHolder(cfg Config, log *zap.Logger) (*PaymentPolicyHolder, error) {
	log = log.Named("config.payments")
	v := viper.New()

	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/shelfpay/config")
	v.AddConfigPath("/etc/shelfpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHELFPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentPolicy()
	v.SetDefault("payments.currency", defaults.Currency)
	v.SetDefault("payments.refundWindow", defaults.RefundWindow)
	v.SetDefault("payments.gatewayTimeout", defaults.GatewayTimeout)
	v.SetDefault("payments.payoutLockTTL", defaults.PayoutLockTTL)
	v.SetDefault("payments.payoutLockWait", defaults.PayoutLockWait)
	v.SetDefault("payments.webhookTolerance", defaults.WebhookTolerance)
	v.SetDefault("payments.replayStaleAfter", defaults.ReplayStaleAfter)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodePaymentPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPaymentPolicyHolder(policy)
	if !fileLoaded || !cfg.PaymentsConfigWatch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePaymentPolicy(v)
		if err != nil {
			log.Warn("invalid payment policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("payment policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodePaymentPolicy unmarshals through AllSettings so file values are
// merged over the per-key defaults.
func decodePaymentPolicy(v *viper.Viper) (PaymentPolicy, error) {
	var wrapper struct {
		Payments PaymentPolicy `mapstructure:"payments"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return PaymentPolicy{}, err
	}
	policy := wrapper.Payments
	policy.Currency = strings.ToLower(strings.TrimSpace(policy.Currency))
	if err := validatePaymentPolicy(policy); err != nil {
		return PaymentPolicy{}, err
	}
	return policy, nil
}

func (h *PaymentPolicyHolder) Get() PaymentPolicy {
	return h.current.Load().(PaymentPolicy)
}

func validatePaymentPolicy(p PaymentPolicy) error {
	if len(p.Currency) != 3 {
		return errors.New("payments.currency must be a 3-letter ISO code")
	}
	if p.RefundWindow <= 0 {
		return errors.New("payments.refundWindow must be positive")
	}
	if p.GatewayTimeout <= 0 {
		return errors.New("payments.gatewayTimeout must be positive")
	}
	if p.PayoutLockTTL <= 0 || p.PayoutLockWait < 0 {
		return errors.New("payments.payoutLockTTL must be positive and payoutLockWait non-negative")
	}
	if p.PayoutLockTTL <= p.GatewayTimeout {
		return errors.New("payments.payoutLockTTL must exceed payments.gatewayTimeout")
	}
	if p.WebhookTolerance <= 0 {
		return errors.New("payments.webhookTolerance must be positive")
	}
	if p.ReplayStaleAfter <= 0 {
		return errors.New("payments.replayStaleAfter must be positive")
	}
	return nil
}
