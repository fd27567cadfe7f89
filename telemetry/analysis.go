package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/b3nn0/goflying/ahrs"

	"github.com/rocketfc/rocketfc/record"
)

// AnalysisLog writes one CSV line per record with the estimator's inputs and
// outputs, for offline tuning of the filters.
type AnalysisLog struct {
	logger *ahrs.AHRSLogger
	logMap map[string]interface{}
}

// NewAnalysisLog creates filename, truncating it.
func NewAnalysisLog(filename string) (*AnalysisLog, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, err
	}
	// The ahrs logger exits the process when it cannot create the file.
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("analysis log: %w", err)
	}
	f.Close()

	logMap := make(map[string]interface{})
	for k, v := range (record.Row{}).Columns() {
		logMap[k] = v
	}
	return &AnalysisLog{logger: ahrs.NewAHRSLogger(filename, logMap), logMap: logMap}, nil
}

func (a *AnalysisLog) Send(rec record.FlightRecord) {
	for k, v := range rec.Flatten().Columns() {
		a.logMap[k] = v
	}
	a.logger.Log()
}

func (a *AnalysisLog) Close() {
	a.logger.Close()
}
