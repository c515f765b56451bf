package rtxp

import (
	"bufio"
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"
	"github.com/pkg/errors"

	"github.com/chainforge/rtxp/internal/logx"
)

var cfgLogger = logx.NewModuleLogger(logx.ConfigMod)

// tomlSettings mirrors the teacher's own toml.Config customization in
// cmd/ranger/config.go: TOML keys use the same names as the Go struct
// fields, with no renaming convention.
var tomlSettings = toml.Config{
	NormFieldName: func(_ reflect.Type, key string) string { return key },
	FieldToKey:    func(_ reflect.Type, field string) string { return field },
}

// Config are the configuration parameters of a Publisher, enumerated in
// spec.md §6. Shaped directly on the teacher's BridgeTxPoolConfig:
// typed fields, a DefaultConfig value, and a sanitize() pass that fixes
// up anything unworkable rather than failing construction.
type Config struct {
	// MinDepthBlocks is the confirmation count required to declare
	// TxConfirmed (spec.md §6: "min_depth_blocks").
	MinDepthBlocks uint32

	// MaxTxPublishRetryDelay upper-bounds the random CheckFee jitter
	// (spec.md §6: "max_tx_publish_retry_delay_ms").
	MaxTxPublishRetryDelay time.Duration

	// BumpRatio is the minimum multiplicative feerate increase any bump
	// must achieve (spec.md §4.1: "bump_ratio = 1.20").
	BumpRatio float64

	// StashSize bounds the message-stash FIFO used during
	// Funding/FundingReplacement (spec.md §5: "design minimum 100").
	StashSize int

	// ReplacementSettleDelay is the fixed re-delay applied to stale
	// intermediate results for a losing attempt during RBF (spec.md
	// §4.1 point 5: "re-delivered to self after 1 s").
	ReplacementSettleDelay time.Duration
}

// DefaultConfig mirrors the literal defaults named in spec.md.
var DefaultConfig = Config{
	MinDepthBlocks:         3,
	MaxTxPublishRetryDelay: time.Minute,
	BumpRatio:              1.20,
	StashSize:              100,
	ReplacementSettleDelay: time.Second,
}

// sanitize checks the provided configuration and fixes anything
// unreasonable or unworkable, logging what it changed — the teacher's
// own BridgeTxPoolConfig.sanitize() idiom.
func (c *Config) sanitize() Config {
	conf := *c
	if conf.MinDepthBlocks == 0 {
		cfgLogger.Error("sanitizing invalid min_depth_blocks", "provided", conf.MinDepthBlocks, "updated", DefaultConfig.MinDepthBlocks)
		conf.MinDepthBlocks = DefaultConfig.MinDepthBlocks
	}
	if conf.MaxTxPublishRetryDelay <= 0 {
		cfgLogger.Error("sanitizing invalid max_tx_publish_retry_delay", "provided", conf.MaxTxPublishRetryDelay, "updated", DefaultConfig.MaxTxPublishRetryDelay)
		conf.MaxTxPublishRetryDelay = DefaultConfig.MaxTxPublishRetryDelay
	}
	if conf.BumpRatio < 1.0 {
		cfgLogger.Error("sanitizing invalid bump_ratio", "provided", conf.BumpRatio, "updated", DefaultConfig.BumpRatio)
		conf.BumpRatio = DefaultConfig.BumpRatio
	}
	if conf.StashSize < 100 {
		cfgLogger.Error("sanitizing invalid stash_size", "provided", conf.StashSize, "updated", DefaultConfig.StashSize)
		conf.StashSize = DefaultConfig.StashSize
	}
	if conf.ReplacementSettleDelay <= 0 {
		conf.ReplacementSettleDelay = DefaultConfig.ReplacementSettleDelay
	}
	return conf
}

// NewConfig sanitizes and returns a usable Config.
func NewConfig(c Config) Config { return c.sanitize() }

// fileConfig is the on-disk shape loaded via naoina/toml, kept separate
// from Config so the public struct's field types (time.Duration) can
// stay idiomatic while the file format stays plain milliseconds/ints,
// matching spec.md §6's ms-suffixed option names.
type fileConfig struct {
	MinDepthBlocks            uint32
	MaxTxPublishRetryDelayMs  int64
	BumpRatio                 float64
	StashSize                 int
	ReplacementSettleDelayMs  int64
}

// LoadConfigTOML loads a Config from a TOML file. This is a thin
// convenience for embedding callers; it is not a CLI (spec.md §1 keeps
// CLI/config-loading bootstrap out of scope for the larger node, but a
// library still needs a way to load its own few knobs from a file).
func LoadConfigTOML(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	var fc fileConfig
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&fc); err != nil {
		return Config{}, errors.Wrap(err, "decode config file")
	}

	c := Config{
		MinDepthBlocks:         fc.MinDepthBlocks,
		MaxTxPublishRetryDelay: time.Duration(fc.MaxTxPublishRetryDelayMs) * time.Millisecond,
		BumpRatio:              fc.BumpRatio,
		StashSize:              fc.StashSize,
		ReplacementSettleDelay: time.Duration(fc.ReplacementSettleDelayMs) * time.Millisecond,
	}
	return c.sanitize(), nil
}
