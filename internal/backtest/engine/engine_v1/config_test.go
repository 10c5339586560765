package engine

import (
	"testing"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v2"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestParseFullConfig() {
	raw := `
initial_capital: 10000
commission_rate: 0.001
slippage_bps: 10
leverage: 2
stop_loss_pct: 5
take_profit_pct: 10
max_drawdown_pct: 20
`

	config := EmptyConfig()
	suite.Require().NoError(yaml.Unmarshal([]byte(raw), &config))

	suite.Equal(10000.0, config.InitialCapital)
	suite.Equal(0.001, config.CommissionRate)
	suite.Equal(10.0, config.SlippageBps)
	suite.Equal(2, config.Leverage)
	suite.True(config.StopLossPct.IsSome())
	suite.Equal(5.0, config.StopLossPct.Unwrap())
	suite.True(config.TakeProfitPct.IsSome())
	suite.Equal(10.0, config.TakeProfitPct.Unwrap())
	suite.True(config.MaxDrawdownPct.IsSome())
	suite.Equal(20.0, config.MaxDrawdownPct.Unwrap())

	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestParseMinimalConfig() {
	raw := `initial_capital: 5000`

	config := EmptyConfig()
	suite.Require().NoError(yaml.Unmarshal([]byte(raw), &config))

	suite.Equal(5000.0, config.InitialCapital)
	suite.Equal(0.0, config.CommissionRate)
	suite.Equal(0.0, config.SlippageBps)
	// Leverage defaults to 1 when omitted
	suite.Equal(1, config.Leverage)
	suite.True(config.StopLossPct.IsNone())
	suite.True(config.TakeProfitPct.IsNone())
	suite.True(config.MaxDrawdownPct.IsNone())

	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestValidateRejectsNonPositiveCapital() {
	config := EmptyConfig()
	config.InitialCapital = 0

	err := config.Validate()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeBacktestConfigError))
}

func (suite *ConfigTestSuite) TestValidateThresholdRange() {
	for _, raw := range []string{
		"initial_capital: 1000\nstop_loss_pct: 0",
		"initial_capital: 1000\nstop_loss_pct: -5",
		"initial_capital: 1000\ntake_profit_pct: 150",
		"initial_capital: 1000\nmax_drawdown_pct: 101",
	} {
		config := EmptyConfig()
		suite.Require().NoError(yaml.Unmarshal([]byte(raw), &config))

		err := config.Validate()
		suite.Require().Error(err, raw)
		suite.True(errors.HasCode(err, errors.ErrCodeBacktestConfigError))
	}

	// 100 is the inclusive upper bound
	config := EmptyConfig()
	suite.Require().NoError(yaml.Unmarshal([]byte("initial_capital: 1000\nmax_drawdown_pct: 100"), &config))
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestGenerateSchema() {
	config := EmptyConfig()

	schemaJSON, err := config.GenerateSchemaJSON()
	suite.Require().NoError(err)

	suite.Contains(schemaJSON, "initial_capital")
	suite.Contains(schemaJSON, "stop_loss_pct")
	suite.Contains(schemaJSON, "max_drawdown_pct")
}
