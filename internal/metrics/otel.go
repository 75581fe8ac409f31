package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/torosent/lagmeter/internal/monitor"
)

// RegisterObservableGauges registers one Int64ObservableGauge per metric in set,
// named prefix+name, observed from the live gauge on every collection.
// Unregister the returned registration to stop observing.
func RegisterObservableGauges(meter metric.Meter, prefix string, set monitor.MetricSet) (metric.Registration, error) {
	gaugesByName := set.Metrics()
	names := sortedNames(gaugesByName)

	instruments := make([]metric.Int64ObservableGauge, len(names))
	observables := make([]metric.Observable, len(names))
	for i, name := range names {
		g, err := meter.Int64ObservableGauge(
			prefix+name,
			metric.WithUnit("ms"),
			metric.WithDescription("Message timestamp "+name+" between the last ingested and the last processed message"),
		)
		if err != nil {
			return nil, fmt.Errorf("observable gauge %q: %w", name, err)
		}
		instruments[i] = g
		observables[i] = g
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for i, name := range names {
			o.ObserveInt64(instruments[i], gaugesByName[name].Value())
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register gauge callback: %w", err)
	}
	return reg, nil
}
