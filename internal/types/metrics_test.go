package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type MetricsTestSuite struct {
	suite.Suite
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (suite *MetricsTestSuite) TestWriteMetrics() {
	tmpDir := suite.T().TempDir()
	path := filepath.Join(tmpDir, "metrics.yaml")

	metrics := BacktestMetrics{
		InitialCapital: 10000,
		FinalEquity:    10097.9,
		TotalReturn:    97.9,
		TotalReturnPct: 0.979,
		TotalTrades:    1,
		WinningTrades:  1,
		WinRate:        100,
	}

	err := WriteMetrics(path, metrics)
	suite.Require().NoError(err)

	data, err := os.ReadFile(path)
	suite.Require().NoError(err)

	var loaded BacktestMetrics
	suite.Require().NoError(yaml.Unmarshal(data, &loaded))
	suite.Equal(metrics, loaded)
}

func (suite *MetricsTestSuite) TestWriteMetricsBadPath() {
	err := WriteMetrics("/nonexistent-dir/metrics.yaml", BacktestMetrics{})
	suite.Error(err)
}
