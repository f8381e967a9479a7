package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/plant"
	"github.com/Agrid-Dev/cracfuzzy/internal/rulebase"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
)

type SetpointCommand struct {
	Minute int
	Value  float64
}

// SimulateStation steps the default controller and plant minute by minute, applying
// setpoint changes at the given minutes, and writes the evolution to filename.
func SimulateStation(ctx context.Context, minutes int, filename string, setpointCommands []SetpointCommand) error {
	rb, err := rulebase.Default().Build()
	if err != nil {
		return fmt.Errorf("failed to build rule base: %w", err)
	}
	ctrl, err := crac.New(rb)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	model, err := plant.NewModel(plant.DefaultParams())
	if err != nil {
		return fmt.Errorf("failed to create plant: %w", err)
	}

	cfg := simulation.DefaultConfig()
	cfg.Steps = minutes
	cfg.External = simulation.Daily(cfg.External)
	cfg.Load = simulation.Daily(cfg.Load)
	driver, err := simulation.NewDriver(ctrl, model, cfg)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}
	limits := simulation.DefaultLimits()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Minute", "Temperature", "Setpoint", "ComfortMin", "ComfortMax", "AlertAbove", "Control"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	setpoint := cfg.Setpoint
	st := driver.InitialState()
	for minute := range minutes {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for _, cmd := range setpointCommands {
			if cmd.Minute == minute {
				setpoint = cmd.Value
				break
			}
		}

		sample, next, err := driver.Step(minute, setpoint, st)
		if err != nil {
			return err
		}
		if err := writer.Write([]string{
			fmt.Sprintf("%d", minute),
			fmt.Sprintf("%.2f", sample.Temperature),
			fmt.Sprintf("%.2f", setpoint),
			fmt.Sprintf("%.2f", limits.ComfortMin),
			fmt.Sprintf("%.2f", limits.ComfortMax),
			fmt.Sprintf("%.2f", limits.AlertAbove),
			fmt.Sprintf("%.2f", sample.Control),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
		st = next
	}
	return nil
}

func main() {
	commands := []SetpointCommand{
		{Minute: 8 * 60, Value: 20.0},
		{Minute: 18 * 60, Value: 24.0},
	}
	if err := SimulateStation(context.Background(), 2*simulation.MinutesPerDay, "cracfuzzy_evolution.csv", commands); err != nil {
		log.Fatal(err)
	}
}
