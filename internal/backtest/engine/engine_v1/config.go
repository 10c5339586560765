package engine

import (
	"encoding/json"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// BacktestConfig holds the immutable run parameters. These fields are the
// only recognized knobs; the engine reads no environment variables or files.
type BacktestConfig struct {
	// InitialCapital is the starting capital in account currency.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0" jsonschema:"title=Initial Capital,description=Starting capital for the backtest,minimum=0"`
	// CommissionRate is the commission charged per fill as a fraction of
	// notional (0.001 = 10 bps).
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0" jsonschema:"title=Commission Rate,description=Commission as a fraction of fill notional"`
	// SlippageBps adjusts market order fills away from the bar close, in
	// basis points. Buys pay close*(1+bps/10000); sells receive
	// close*(1-bps/10000).
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps" validate:"gte=0" jsonschema:"title=Slippage,description=Market order slippage in basis points"`
	// Leverage is the notional multiple of cash a single order may reach
	// before a warning is logged. The engine does not model margin calls.
	Leverage int `yaml:"leverage" json:"leverage" validate:"gte=1" jsonschema:"title=Leverage,description=Maximum notional as a multiple of cash,minimum=1"`
	// StopLossPct force-closes a position when its unrealized loss reaches
	// this percentage of entry notional. In percent units, (0, 100].
	StopLossPct optional.Option[float64] `yaml:"stop_loss_pct" json:"stop_loss_pct" jsonschema:"title=Stop Loss Percent"`
	// TakeProfitPct force-closes a position when its unrealized gain reaches
	// this percentage of entry notional. In percent units, (0, 100].
	TakeProfitPct optional.Option[float64] `yaml:"take_profit_pct" json:"take_profit_pct" jsonschema:"title=Take Profit Percent"`
	// MaxDrawdownPct halts the whole run when equity drawdown from peak
	// exceeds this percentage. In percent units, (0, 100].
	MaxDrawdownPct optional.Option[float64] `yaml:"max_drawdown_pct" json:"max_drawdown_pct" jsonschema:"title=Max Drawdown Percent"`
}

// EmptyConfig returns the zero configuration. Initialize replaces it with the
// parsed YAML config.
func EmptyConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital: 0,
		CommissionRate: 0,
		SlippageBps:    0,
		Leverage:       1,
		StopLossPct:    optional.None[float64](),
		TakeProfitPct:  optional.None[float64](),
		MaxDrawdownPct: optional.None[float64](),
	}
}

// UnmarshalYAML implements custom unmarshaling for BacktestConfig
func (c *BacktestConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		InitialCapital float64  `yaml:"initial_capital"`
		CommissionRate float64  `yaml:"commission_rate"`
		SlippageBps    float64  `yaml:"slippage_bps"`
		Leverage       int      `yaml:"leverage"`
		StopLossPct    *float64 `yaml:"stop_loss_pct"`
		TakeProfitPct  *float64 `yaml:"take_profit_pct"`
		MaxDrawdownPct *float64 `yaml:"max_drawdown_pct"`
	}

	var config Config
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.InitialCapital = config.InitialCapital
	c.CommissionRate = config.CommissionRate
	c.SlippageBps = config.SlippageBps

	c.Leverage = config.Leverage
	if c.Leverage == 0 {
		c.Leverage = 1
	}

	c.StopLossPct = optional.FromNillable(config.StopLossPct)
	c.TakeProfitPct = optional.FromNillable(config.TakeProfitPct)
	c.MaxDrawdownPct = optional.FromNillable(config.MaxDrawdownPct)

	return nil
}

// Validate checks the configuration invariants.
func (c *BacktestConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid backtest config", err)
	}

	// The optional thresholds are percent values in (0, 100]; validator
	// cannot see inside Option so check them here.
	for name, threshold := range map[string]optional.Option[float64]{
		"stop_loss_pct":    c.StopLossPct,
		"take_profit_pct":  c.TakeProfitPct,
		"max_drawdown_pct": c.MaxDrawdownPct,
	} {
		if threshold.IsSome() {
			value := threshold.Unwrap()
			if value <= 0 || value > 100 {
				return errors.Newf(errors.ErrCodeBacktestConfigError, "%s must be in (0, 100], got %f", name, value)
			}
		}
	}

	return nil
}

// GenerateSchema generates a JSON schema for the BacktestConfig
func (c *BacktestConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[float64]" {
				return &jsonschema.Schema{
					Type: "number",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for the backtest engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON returns the config schema as indented JSON.
func (c *BacktestConfig) GenerateSchemaJSON() (string, error) {
	schema := c.GenerateSchema()

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}
