package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/retry"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultFeeBasisPoints    = 100
	DefaultMinimumFeeUnits   = 1000
	DefaultFinalityThreshold = 1000
	DefaultFeeLevel          = "MEDIUM"
	DefaultProtocolVersion   = 2
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

type ChainConfig struct {
	Name             string         `yaml:"-"`
	DomainID         uint32         `yaml:"domain_id"`
	ChainID          string         `yaml:"chain_id"`
	Blockchain       string         `yaml:"blockchain"`
	TokenAddress     common.Address `yaml:"token_address"`
	MessengerAddress common.Address `yaml:"messenger_address"`
	ReceiverAddress  common.Address `yaml:"receiver_address"`
	ProtocolVersion  uint8          `yaml:"protocol_version"`
	RPC              *RPCConfig     `yaml:"rpc"`
}

type SigningServiceConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	EntitySecret string        `yaml:"entity_secret"`
	FeeLevel     string        `yaml:"fee_level"`
	Timeout      time.Duration `yaml:"timeout"`
	Poll         retry.Policy  `yaml:"poll"`
}

type AttestationConfig struct {
	BaseURL   string           `yaml:"base_url"`
	Timeout   time.Duration    `yaml:"timeout"`
	Attesters []common.Address `yaml:"attesters"`
	Poll      retry.Policy     `yaml:"poll"`
}

type PolicyConfig struct {
	FeeBasisPoints    int64  `yaml:"fee_basis_points"`
	MinimumFeeUnits   int64  `yaml:"minimum_fee_units"`
	FinalityThreshold uint32 `yaml:"finality_threshold"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type ResumerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	AutoComplete bool          `yaml:"auto_complete"`
	StuckAfter   time.Duration `yaml:"stuck_after"`
	BatchSize    uint64        `yaml:"batch_size"`
}

// WalletConfig pre-registers a custodial wallet of the signing service.
type WalletConfig struct {
	UserID   string         `yaml:"user_id"`
	Chain    string         `yaml:"chain"`
	WalletID string         `yaml:"wallet_id"`
	Address  common.Address `yaml:"address"`
}

type Config struct {
	Chains         map[string]*ChainConfig `yaml:"chains"`
	SigningService *SigningServiceConfig   `yaml:"signing_service"`
	Attestation    *AttestationConfig      `yaml:"attestation"`
	Policy         *PolicyConfig           `yaml:"policy"`
	DBConfig       *DBConfig               `yaml:"postgres"`
	RabbitMQ       *RabbitMQConfig         `yaml:"rabbitmq"`
	LogLevel       logrus.Level            `yaml:"log_level"`
	Presenter      *PresenterConfig        `yaml:"presenter"`
	Resumer        *ResumerConfig          `yaml:"resumer"`
	Wallets        []*WalletConfig         `yaml:"wallets"`
}

func (cfg *Config) init() error {
	if len(cfg.Chains) < 2 {
		return fmt.Errorf("at least two chains are required, got %d: %w", len(cfg.Chains), ErrInvalidConfig)
	}
	domains := make(map[uint32]string, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		if chain == nil {
			return fmt.Errorf("chain %s has empty config: %w", name, ErrInvalidConfig)
		}
		chain.Name = name
		if other, ok := domains[chain.DomainID]; ok {
			return fmt.Errorf("chains %s and %s share domain id %d: %w", other, name, chain.DomainID, ErrInvalidConfig)
		}
		domains[chain.DomainID] = name
		for field, addr := range map[string]common.Address{
			"token_address":     chain.TokenAddress,
			"messenger_address": chain.MessengerAddress,
			"receiver_address":  chain.ReceiverAddress,
		} {
			if addr == (common.Address{}) {
				return fmt.Errorf("chain %s: %s is not set: %w", name, field, ErrInvalidConfig)
			}
		}
		if chain.ProtocolVersion == 0 {
			chain.ProtocolVersion = DefaultProtocolVersion
		}
		if chain.ProtocolVersion > 2 {
			return fmt.Errorf("chain %s: unsupported protocol version %d: %w", name, chain.ProtocolVersion, ErrInvalidConfig)
		}
		if chain.Blockchain == "" {
			return fmt.Errorf("chain %s: blockchain is not set: %w", name, ErrInvalidConfig)
		}
		if chain.RPC != nil && chain.RPC.Timeout == 0 {
			chain.RPC.Timeout = 30 * time.Second
		}
	}

	if cfg.SigningService == nil {
		return fmt.Errorf("signing_service section is missing: %w", ErrInvalidConfig)
	}
	if cfg.SigningService.FeeLevel == "" {
		cfg.SigningService.FeeLevel = DefaultFeeLevel
	}
	if cfg.SigningService.Timeout == 0 {
		cfg.SigningService.Timeout = 30 * time.Second
	}
	if cfg.SigningService.Poll.Attempts == 0 {
		cfg.SigningService.Poll = retry.Policy{Attempts: 60, Interval: 3 * time.Second}
	}
	if err := cfg.SigningService.Poll.Validate(); err != nil {
		return fmt.Errorf("signing_service.poll: %v: %w", err, ErrInvalidConfig)
	}

	if cfg.Attestation == nil {
		return fmt.Errorf("attestation section is missing: %w", ErrInvalidConfig)
	}
	if cfg.Attestation.Timeout == 0 {
		cfg.Attestation.Timeout = 30 * time.Second
	}
	if cfg.Attestation.Poll.Attempts == 0 {
		cfg.Attestation.Poll = retry.Policy{Attempts: 60, Interval: 30 * time.Second}
	}
	if err := cfg.Attestation.Poll.Validate(); err != nil {
		return fmt.Errorf("attestation.poll: %v: %w", err, ErrInvalidConfig)
	}

	if cfg.Policy == nil {
		cfg.Policy = new(PolicyConfig)
	}
	if cfg.Policy.FeeBasisPoints == 0 {
		cfg.Policy.FeeBasisPoints = DefaultFeeBasisPoints
	}
	if cfg.Policy.MinimumFeeUnits == 0 {
		cfg.Policy.MinimumFeeUnits = DefaultMinimumFeeUnits
	}
	if cfg.Policy.FinalityThreshold == 0 {
		cfg.Policy.FinalityThreshold = DefaultFinalityThreshold
	}
	if cfg.Policy.FeeBasisPoints < 0 || cfg.Policy.FeeBasisPoints >= 10000 || cfg.Policy.MinimumFeeUnits < 0 {
		return fmt.Errorf("policy fee settings are out of range: %w", ErrInvalidConfig)
	}

	if cfg.Resumer != nil {
		if cfg.Resumer.Interval == 0 {
			cfg.Resumer.Interval = time.Minute
		}
		if cfg.Resumer.Timeout == 0 {
			cfg.Resumer.Timeout = 30 * time.Second
		}
		if cfg.Resumer.StuckAfter == 0 {
			cfg.Resumer.StuckAfter = time.Hour
		}
		if cfg.Resumer.BatchSize == 0 {
			cfg.Resumer.BatchSize = 100
		}
	}
	for i, w := range cfg.Wallets {
		if w == nil || w.UserID == "" || w.WalletID == "" {
			return fmt.Errorf("wallets[%d]: user_id and wallet_id are required: %w", i, ErrInvalidConfig)
		}
		if _, ok := cfg.Chains[w.Chain]; !ok {
			return fmt.Errorf("wallets[%d]: unknown chain %q: %w", i, w.Chain, ErrInvalidConfig)
		}
		if w.Address == (common.Address{}) {
			return fmt.Errorf("wallets[%d]: address is not set: %w", i, ErrInvalidConfig)
		}
	}
	if cfg.RabbitMQ != nil && cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "bridge_events"
	}
	return nil
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
