package report

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

const reportVersion = "1.0"

type jsonReport struct {
	Version string `json:"version"`
	*RunReport
}

// GenerateJSON serializes a finished run report as indented JSON.
func GenerateJSON(rep *RunReport) ([]byte, error) {
	output, err := json.MarshalIndent(jsonReport{Version: reportVersion, RunReport: rep}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return output, nil
}
