package config

import (
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig holds the wallet/ledger policy knobs.
type LedgerConfig struct {
	// AllowMemberOverdraft lets personal balances go negative. Organization
	// wallets never may, regardless of this setting.
	AllowMemberOverdraft bool
	AbuseQueueKey        string
	AbuseQueuePopTimeout time.Duration
	MaxTransferAmount    float64
}

func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("ledger.allow_member_overdraft", false)
	viper.SetDefault("ledger.abuse_queue_key", "abuse_analysis_queue")
	viper.SetDefault("ledger.abuse_queue_pop_timeout", 5*time.Second)
	viper.SetDefault("ledger.max_transfer_amount", 1000.0)

	return &LedgerConfig{
		AllowMemberOverdraft: viper.GetBool("ledger.allow_member_overdraft"),
		AbuseQueueKey:        viper.GetString("ledger.abuse_queue_key"),
		AbuseQueuePopTimeout: viper.GetDuration("ledger.abuse_queue_pop_timeout"),
		MaxTransferAmount:    viper.GetFloat64("ledger.max_transfer_amount"),
	}
}

// NATSConfig holds the event broker settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

func LoadNATSConfig() *NATSConfig {
	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.subject_prefix", "nexus.transactions")

	return &NATSConfig{
		URL:           viper.GetString("nats.url"),
		SubjectPrefix: viper.GetString("nats.subject_prefix"),
	}
}
