package optimizer

import (
	"errors"
	"fmt"
	"os"

	"github.com/brimdata/parfor/compiler/optimizer/cost"
	"github.com/brimdata/parfor/runtime/infra"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// ParFactorInfrastructure scales the available parallelism into the
	// parallelism ceiling.
	ParFactorInfrastructure float64 `yaml:"par_factor_infrastructure"`
	// MemUtilFactor scales the memory of an execution slot into the
	// memory ceiling.
	MemUtilFactor         float64 `yaml:"mem_util_factor"`
	AllowDynRecompilation bool    `yaml:"allow_dyn_recompilation"`
	AllowRuntimeCostModel bool    `yaml:"allow_runtime_cost_model"`
	// CostModel overrides the cost model the optimizers declare.  Empty
	// keeps the static memory model.
	CostModel            string        `yaml:"cost_model"`
	CheckPlanCorrectness bool          `yaml:"check_plan_correctness"`
	Monitor              bool          `yaml:"monitor"`
	Concurrency          int           `yaml:"concurrency"`
	LogLevel             zapcore.Level `yaml:"log_level"`
	Cost                 cost.Config   `yaml:"cost"`
	Cluster              infra.Cluster `yaml:"cluster"`
}

func DefaultConfig() Config {
	return Config{
		ParFactorInfrastructure: 1.0,
		MemUtilFactor:           0.7,
		AllowDynRecompilation:   true,
		Concurrency:             1,
		LogLevel:                zapcore.InfoLevel,
		Cost:                    cost.DefaultConfig(),
	}
}

// LoadConfig reads a YAML configuration from path over the defaults.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err := yaml.UnmarshalWithOptions(b, &conf, yaml.DisallowUnknownField()); err != nil {
		return conf, fmt.Errorf("%s: %w", path, err)
	}
	return conf, conf.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.ParFactorInfrastructure <= 0:
		return errors.New("par_factor_infrastructure must be positive")
	case c.MemUtilFactor <= 0 || c.MemUtilFactor > 1:
		return errors.New("mem_util_factor must be in (0, 1]")
	case c.Concurrency < 0:
		return errors.New("concurrency must not be negative")
	case c.Cost.DefaultMem <= 0:
		return errors.New("cost.default_mem must be positive")
	case c.Cost.DefaultIterations < 0:
		return errors.New("cost.default_iterations must not be negative")
	case c.Cost.BlockSize <= 0:
		return errors.New("cost.block_size must be positive")
	case c.Cost.LocalBandwidth <= 0 || c.Cost.ClusterBandwidth <= 0:
		return errors.New("cost bandwidths must be positive")
	}
	if _, err := c.costModel(); err != nil {
		return err
	}
	return c.Cluster.Validate()
}

func (c Config) costModel() (cost.Model, error) {
	if c.CostModel == "" {
		return cost.StaticMemMetric, nil
	}
	return cost.ParseModel(c.CostModel)
}
