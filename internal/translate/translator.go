// Package translate turns host lifecycle events into metric updates.
//
// Every category is described by a Schema. Categories with a terminal action
// (builds, buildsets, build requests, steps) record a duration and an outcome;
// builders and workers keep running gauges through paired increments and
// decrements. Events with any other action are ignored.
package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/neox5/bbexporter/internal/event"
	"github.com/neox5/bbexporter/internal/results"
)

// Metrics is the mutation surface translators write to.
type Metrics interface {
	Inc(name string, labelValues ...string) error
	Dec(name string, labelValues ...string) error
	Set(name string, v float64, labelValues ...string) error
}

// New returns the handler for schema s writing to m.
func New(m Metrics, s Schema) (event.Handler, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.Duration != nil {
		t := &durationTranslator{metrics: m, labels: s.Labels, spec: *s.Duration}
		return t.handle, nil
	}
	t := &levelTranslator{metrics: m, labels: s.Labels, spec: *s.Level}
	return t.handle, nil
}

type durationTranslator struct {
	metrics Metrics
	labels  LabelFunc
	spec    DurationSpec
}

func (t *durationTranslator) handle(ctx context.Context, env event.Envelope) error {
	if env.Key.Action != t.spec.Action {
		return nil
	}

	violation := func(err error) error {
		return &ViolationError{Key: env.Key, Err: err}
	}

	p := env.Payload
	complete, err := p.Bool("complete")
	if err != nil {
		return violation(err)
	}
	if !complete {
		return violation(ErrIncomplete)
	}

	labels, err := t.labels(ctx, p)
	if err != nil {
		return violation(err)
	}

	start, err := p.Time(t.spec.StartField)
	if err != nil {
		return violation(err)
	}
	end, err := p.Time(t.spec.EndField)
	if err != nil {
		return violation(err)
	}
	code, err := p.Int(t.spec.ResultField)
	if err != nil {
		return violation(err)
	}

	duration := end.Sub(start).Seconds()
	if duration < 0 {
		return violation(fmt.Errorf("%w: %s=%s %s=%s", ErrNegativeDuration,
			t.spec.StartField, start.UTC().Format(time.RFC3339Nano),
			t.spec.EndField, end.UTC().Format(time.RFC3339Nano)))
	}

	var counter string
	switch results.Classify(results.Code(code)).Bucket() {
	case results.OutcomeSuccess:
		counter = t.spec.SuccessCounter
	case results.OutcomeFailure:
		counter = t.spec.FailureCounter
	default:
		counter = t.spec.ErrorCounter
	}

	if err := t.metrics.Set(t.spec.DurationGauge, duration, labels...); err != nil {
		return fmt.Errorf("failed to set duration: %w", err)
	}
	if err := t.metrics.Inc(counter, labels...); err != nil {
		return fmt.Errorf("failed to count outcome: %w", err)
	}
	return nil
}

type levelTranslator struct {
	metrics Metrics
	labels  LabelFunc
	spec    LevelSpec
}

func (t *levelTranslator) handle(ctx context.Context, env event.Envelope) error {
	var step func(name string, labelValues ...string) error
	switch env.Key.Action {
	case t.spec.Started:
		step = t.metrics.Inc
	case t.spec.Stopped:
		step = t.metrics.Dec
	default:
		return nil
	}

	labels, err := t.labels(ctx, env.Payload)
	if err != nil {
		return &ViolationError{Key: env.Key, Err: err}
	}

	if err := step(t.spec.TotalGauge); err != nil {
		return fmt.Errorf("failed to update %s: %w", t.spec.TotalGauge, err)
	}
	if err := step(t.spec.EntityGauge, labels...); err != nil {
		return fmt.Errorf("failed to update %s: %w", t.spec.EntityGauge, err)
	}
	return nil
}
