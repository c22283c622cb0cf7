package translate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/neox5/bbexporter/internal/event"
	"github.com/neox5/bbexporter/internal/metric"
)

// LabelFunc extracts the label values for a schema's metrics, in the order
// of the metrics' label names.
type LabelFunc func(ctx context.Context, p event.Payload) ([]string, error)

// Schema declares how events of one category translate into metrics.
// Exactly one of Duration and Level is set.
type Schema struct {
	Category string
	Labels   LabelFunc
	Duration *DurationSpec
	Level    *LevelSpec
}

// DurationSpec drives the duration-and-outcome translator: on Action the
// duration gauge is set and one outcome counter incremented.
type DurationSpec struct {
	Action      string
	StartField  string
	EndField    string
	ResultField string

	DurationGauge  string
	SuccessCounter string
	FailureCounter string
	ErrorCounter   string
}

// LevelSpec drives the level-triggered translator: Started increments both
// gauges, Stopped decrements them.
type LevelSpec struct {
	Started string
	Stopped string

	EntityGauge string
	TotalGauge  string
}

func (s Schema) validate() error {
	if s.Category == "" {
		return fmt.Errorf("schema: category cannot be empty")
	}
	if s.Labels == nil {
		return fmt.Errorf("schema %q: labels extractor is required", s.Category)
	}
	if (s.Duration == nil) == (s.Level == nil) {
		return fmt.Errorf("schema %q: exactly one of duration or level must be set", s.Category)
	}
	return nil
}

// fields returns a LabelFunc reading the given payload fields in order.
func fields(names ...string) LabelFunc {
	return func(_ context.Context, p event.Payload) ([]string, error) {
		values := make([]string, len(names))
		for i, name := range names {
			v, err := p.Label(name)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	}
}

// stepLabels resolves builder and worker through the step's parent build.
func stepLabels(fetcher BuildFetcher) LabelFunc {
	own := fields("number", "name")
	return func(ctx context.Context, p event.Payload) ([]string, error) {
		values, err := own(ctx, p)
		if err != nil {
			return nil, err
		}

		buildID, err := p.Int("buildid")
		if err != nil {
			return nil, err
		}

		build, err := fetcher.FetchBuild(ctx, buildID)
		if err != nil {
			return nil, fmt.Errorf("%w: build %d: %w", ErrLookup, buildID, err)
		}

		return append(values,
			strconv.FormatInt(build.BuilderID, 10),
			strconv.FormatInt(build.WorkerID, 10),
		), nil
	}
}

func outcomeSpec(action, start, prefix string) *DurationSpec {
	return &DurationSpec{
		Action:         action,
		StartField:     start,
		EndField:       "complete_at",
		ResultField:    "results",
		DurationGauge:  prefix + "_duration_seconds",
		SuccessCounter: prefix + "_success",
		FailureCounter: prefix + "_failure",
		ErrorCounter:   prefix + "_error",
	}
}

// Schemas returns the schema of every host event category.
func Schemas(fetcher BuildFetcher) []Schema {
	return []Schema{
		{
			Category: event.CategoryBuilds,
			Labels:   fields("builderid", "workerid"),
			Duration: outcomeSpec("finished", "started_at", "builds"),
		},
		{
			Category: event.CategoryBuilders,
			Labels:   fields("builderid", "name"),
			Level: &LevelSpec{
				Started:     "started",
				Stopped:     "stopped",
				EntityGauge: metric.BuildersRunning,
				TotalGauge:  metric.BuildersRunningTotal,
			},
		},
		{
			Category: event.CategoryBuildsets,
			Labels:   fields("bsid"),
			Duration: outcomeSpec("complete", "submitted_at", "buildsets"),
		},
		{
			Category: event.CategoryBuildRequests,
			Labels:   fields("builderid"),
			Duration: outcomeSpec("complete", "submitted_at", "build_requests"),
		},
		{
			Category: event.CategorySteps,
			Labels:   stepLabels(fetcher),
			Duration: outcomeSpec("finished", "started_at", "steps"),
		},
		{
			Category: event.CategoryWorkers,
			Labels:   fields("workerid", "name"),
			Level: &LevelSpec{
				Started:     "connected",
				Stopped:     "disconnected",
				EntityGauge: metric.WorkersRunning,
				TotalGauge:  metric.WorkersRunningTotal,
			},
		},
	}
}
