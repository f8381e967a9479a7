package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

// Runner is a long-lived component attached to the device (controllers, telemetry).
type Runner interface {
	Run(ctx context.Context) error
}

type attached struct {
	name string
	r    Runner
}

// Device is one simulated CRAC unit: the station loop plus the surfaces exposing it.
type Device struct {
	ID      string
	Station *station.Station

	log     *zap.Logger
	runners []attached
}

func New(id string, st *station.Station, log *zap.Logger) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	return &Device{ID: id, Station: st, log: log.With(zap.String("device_id", id))}
}

func (d *Device) Attach(name string, r Runner) {
	d.runners = append(d.runners, attached{name: name, r: r})
}

// Components lists attached runner names in attach order.
func (d *Device) Components() []string {
	names := make([]string, len(d.runners))
	for i, a := range d.runners {
		names[i] = a.name
	}
	return names
}

// Run steps the station every interval and runs every attached component until ctx
// is done or one of them fails. Cancellation is not reported as an error.
func (d *Device) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.Station.Run(ctx, interval)
	})
	for _, a := range d.runners {
		g.Go(func() error {
			d.log.Info("component started", zap.String("component", a.name))
			err := a.r.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error("component failed", zap.String("component", a.name), zap.Error(err))
				return fmt.Errorf("%s: %w", a.name, err)
			}
			d.log.Info("component stopped", zap.String("component", a.name))
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
