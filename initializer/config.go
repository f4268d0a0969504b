package initializer

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/edaniels/golog"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Default configuration values, used absent any project override.
const (
	defaultMinCorners       = 100
	defaultMinTracked       = 50
	defaultMinDisparity     = 50.0
	defaultSigma            = 1.0
	defaultMinInliers       = 50
	defaultMaxRANSACIters   = 200
	defaultMinConnectionObs = 15
)

// Config holds the recognized initializer options, decoded from a JSON
// attribute map.
type Config struct {
	MinCorners                int     `json:"init_min_corners"`
	MinTracked                int     `json:"init_min_tracked"`
	MinDisparity              float64 `json:"init_min_disparity"`
	Sigma                     float64 `json:"init_sigma"`
	MinInliers                int     `json:"init_min_inliers"`
	MaxRANSACIters            int     `json:"init_max_ransac_iters"`
	MinConnectionObservations int     `json:"min_connection_observations"`

	// Seed is not part of the recognized JSON options; it exposes the
	// RANSAC pseudo-random source as a configuration input for
	// reproducibility, set by the caller directly rather than decoded
	// from a config file.
	Seed int64 `json:"-"`

	Logger golog.Logger `json:"-"`
}

// DefaultConfig returns a Config populated with the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		MinCorners:                defaultMinCorners,
		MinTracked:                defaultMinTracked,
		MinDisparity:              defaultMinDisparity,
		Sigma:                     defaultSigma,
		MinInliers:                defaultMinInliers,
		MaxRANSACIters:            defaultMaxRANSACIters,
		MinConnectionObservations: defaultMinConnectionObs,
		Seed:                      1,
		Logger:                    golog.NewLogger("initializer"),
	}
}

// LoadConfig loads an initializer configuration from a JSON file. Defaults
// are seeded first so a partial file only overrides the fields it mentions.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	configFile, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "initializer: opening config file")
	}
	defer utils.UncheckedErrorFunc(configFile.Close)

	if err := json.NewDecoder(configFile).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "initializer: decoding config file")
	}
	return cfg, nil
}

// FromAttributes decodes a generic service attribute map (as produced by
// parsing a component's inline JSON configuration block) into a Config,
// with DefaultConfig's values as the base so a partial map only overrides
// the keys it mentions.
func FromAttributes(attributes map[string]interface{}) (*Config, error) {
	cfg := DefaultConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: cfg})
	if err != nil {
		return nil, errors.Wrap(err, "initializer: building attribute decoder")
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "initializer: decoding attribute map")
	}
	return cfg, nil
}

// Validate checks that every threshold is usable, returning a programmer
// error rather than a pipeline-stage failure kind.
func (c *Config) Validate() error {
	if c.MinCorners <= 0 {
		return errors.New("initializer: init_min_corners must be positive")
	}
	if c.MinTracked <= 0 {
		return errors.New("initializer: init_min_tracked must be positive")
	}
	if c.Sigma <= 0 {
		return errors.New("initializer: init_sigma must be positive")
	}
	if c.MinInliers < 8 {
		return errors.New("initializer: init_min_inliers must be at least 8")
	}
	if c.MaxRANSACIters <= 0 {
		return errors.New("initializer: init_max_ransac_iters must be positive")
	}
	return nil
}

// rng returns a freshly seeded random source for RANSAC sampling.
func (c *Config) rng() *rand.Rand {
	return rand.New(rand.NewSource(c.Seed))
}
