package simulation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{
	"Minute", "Hours", "Setpoint", "Temperature", "ExternalTemperature",
	"Load", "Error", "Derivative", "Raw", "Control", "NoRuleFired",
}

// WriteCSV writes the trace with one header row and one row per sample.
func WriteCSV(w io.Writer, trace Trace) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range trace {
		if err := writer.Write([]string{
			strconv.Itoa(s.Minute),
			fmt.Sprintf("%.4f", s.Hours()),
			fmt.Sprintf("%.2f", s.Setpoint),
			fmt.Sprintf("%.4f", s.Temperature),
			fmt.Sprintf("%.4f", s.ExternalTemperature),
			fmt.Sprintf("%.2f", s.Load),
			fmt.Sprintf("%.4f", s.Error),
			fmt.Sprintf("%.4f", s.Derivative),
			fmt.Sprintf("%.4f", s.Raw),
			fmt.Sprintf("%.4f", s.Control),
			strconv.FormatBool(s.NoRuleFired),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
