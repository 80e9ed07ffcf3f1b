package lending

import (
	"fmt"
	"math/big"
	"os"

	"github.com/BurntSushi/toml"
)

// PoolParams captures the per-pool risk and interest-rate configuration.
// Rate fields are 1e18 fixed-point decimal strings so config files never lose
// precision through floats.
type PoolParams struct {
	LTVBps                  uint64 `toml:"LTVBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps"`
	CloseFactorBps          uint64 `toml:"CloseFactorBps"`
	BaseRate                string `toml:"BaseRate"`
	Slope1                  string `toml:"Slope1"`
	Slope2                  string `toml:"Slope2"`
	OptimalUtilization      string `toml:"OptimalUtilization"`
}

// PoolConfig describes a pool to create at startup.
type PoolConfig struct {
	ID       string     `toml:"ID"`
	Asset    string     `toml:"Asset"`
	Decimals uint8      `toml:"Decimals"`
	FeedID   string     `toml:"FeedID"`
	Params   PoolParams `toml:"params"`
}

// Config is the module-level configuration block.
type Config struct {
	MaxQuoteAgeSeconds uint64       `toml:"MaxQuoteAgeSeconds"`
	Paused             bool         `toml:"Paused"`
	Pools              []PoolConfig `toml:"pool"`
}

// LoadConfig reads and validates a TOML module configuration.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("lending config: %w", err)
	}
	for i := range cfg.Pools {
		p := &cfg.Pools[i]
		if p.ID == "" || p.Asset == "" || p.FeedID == "" {
			return nil, fmt.Errorf("lending config: pool %d missing identifier fields", i)
		}
		if err := p.Params.Validate(); err != nil {
			return nil, fmt.Errorf("lending config: pool %q: %w", p.ID, err)
		}
	}
	return &cfg, nil
}

// Validate checks basis-point bounds and parses the rate strings. Optimal
// utilization must sit strictly inside (0, 1e18) so the kinked curve's
// divisions are well defined.
func (p PoolParams) Validate() error {
	if p.LTVBps == 0 || p.LTVBps > bpsDenominator {
		return fmt.Errorf("%w: LTVBps", ErrInvalidParams)
	}
	if p.LiquidationThresholdBps < p.LTVBps || p.LiquidationThresholdBps > bpsDenominator {
		return fmt.Errorf("%w: LiquidationThresholdBps", ErrInvalidParams)
	}
	if p.LiquidationBonusBps > bpsDenominator {
		return fmt.Errorf("%w: LiquidationBonusBps", ErrInvalidParams)
	}
	if p.CloseFactorBps == 0 || p.CloseFactorBps > bpsDenominator {
		return fmt.Errorf("%w: CloseFactorBps", ErrInvalidParams)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"BaseRate", p.BaseRate},
		{"Slope1", p.Slope1},
		{"Slope2", p.Slope2},
	} {
		if _, err := parseFixed(field.value); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidParams, field.name)
		}
	}
	optimal, err := parseFixed(p.OptimalUtilization)
	if err != nil || optimal.Sign() <= 0 || optimal.Cmp(one18) >= 0 {
		return fmt.Errorf("%w: OptimalUtilization", ErrInvalidParams)
	}
	return nil
}

func parseFixed(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, ErrInvalidParams
	}
	return parsed, nil
}

func mustFixed(value string) *big.Int {
	parsed, err := parseFixed(value)
	if err != nil {
		return new(big.Int)
	}
	return parsed
}

func (p PoolParams) baseRate() *big.Int           { return mustFixed(p.BaseRate) }
func (p PoolParams) slope1() *big.Int             { return mustFixed(p.Slope1) }
func (p PoolParams) slope2() *big.Int             { return mustFixed(p.Slope2) }
func (p PoolParams) optimalUtilization() *big.Int { return mustFixed(p.OptimalUtilization) }
