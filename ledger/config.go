package ledger

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"github.com/0xAtelerix/tokenledger/ledger/eventsource"
	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

type Config struct {
	DataDir        string        `env:"LEDGER_DATA_DIR"        envDefault:"/data"`
	EventsFile     string        `env:"LEDGER_EVENTS_FILE"`
	EventsFormat   string        `env:"LEDGER_EVENTS_FORMAT"   envDefault:"events"`
	TokenContract  string        `env:"LEDGER_TOKEN_CONTRACT"`
	RPCPort        string        `env:"LEDGER_RPC_PORT"        envDefault:":8080"`
	PrometheusPort string        `env:"LEDGER_PROMETHEUS_PORT"` // optional, empty disables
	LogLevel       string        `env:"LEDGER_LOG_LEVEL"       envDefault:"info"`
	LogJSON        bool          `env:"LEDGER_LOG_JSON"        envDefault:"false"`
	MaxRetries     uint          `env:"LEDGER_MAX_RETRIES"     envDefault:"10"`
	PollInterval   time.Duration `env:"LEDGER_POLL_INTERVAL"   envDefault:"2s"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse env: %w", library.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Validate checks the settings needed to consume the event stream.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: empty data dir", library.ErrInvalidConfig)
	}

	if c.EventsFile == "" {
		return fmt.Errorf("%w: LEDGER_EVENTS_FILE is required", library.ErrInvalidConfig)
	}

	if c.MaxRetries == 0 {
		return fmt.Errorf("%w: max retries must be positive", library.ErrInvalidConfig)
	}

	token, err := c.Token()
	if err != nil {
		return err
	}

	if _, err := eventsource.DecoderFor(c.EventsFormat, token); err != nil {
		return err
	}

	return nil
}

// Token is the configured token contract, the zero address when unset.
func (c Config) Token() (common.Address, error) {
	if c.TokenContract == "" {
		return types.SentinelAddress, nil
	}

	addr, err := types.ParseAddress(c.TokenContract)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: token contract: %w", library.ErrInvalidConfig, err)
	}

	return addr, nil
}

func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "ledger", "db")
}
