package metric

// Kind defines the semantic type of a metric.
type Kind string

const (
	KindCounter Kind = "counter"
	KindGauge   Kind = "gauge"
)

// Definition describes one catalog metric. Names are unprefixed; the
// registry namespace is applied on registration.
type Definition struct {
	Name   string
	Kind   Kind
	Labels []string
	Help   string
}

// DefaultNamespace prefixes every exposed metric name.
const DefaultNamespace = "buildbot"

// Catalog metric names.
const (
	BuildsDuration = "builds_duration_seconds"
	BuildsSuccess  = "builds_success"
	BuildsFailure  = "builds_failure"
	BuildsError    = "builds_error"

	BuildersRunningTotal = "builders_running_total"
	BuildersRunning      = "builders_running"

	BuildsetsDuration = "buildsets_duration_seconds"
	BuildsetsSuccess  = "buildsets_success"
	BuildsetsFailure  = "buildsets_failure"
	BuildsetsError    = "buildsets_error"

	BuildRequestsDuration = "build_requests_duration_seconds"
	BuildRequestsSuccess  = "build_requests_success"
	BuildRequestsFailure  = "build_requests_failure"
	BuildRequestsError    = "build_requests_error"

	StepsDuration = "steps_duration_seconds"
	StepsSuccess  = "steps_success"
	StepsFailure  = "steps_failure"
	StepsError    = "steps_error"

	WorkersRunningTotal = "workers_running_total"
	WorkersRunning      = "workers_running"
)

var (
	buildLabels        = []string{"builder_id", "worker_id"}
	builderLabels      = []string{"builder_id", "builder_name"}
	buildsetLabels     = []string{"buildset_id"}
	buildRequestLabels = []string{"builder_id"}
	stepLabels         = []string{"step_number", "step_name", "builder_id", "worker_id"}
	workerLabels       = []string{"worker_id", "worker_name"}
)

// Catalog returns the fixed set of exported metrics in declaration order.
func Catalog() []Definition {
	return []Definition{
		{BuildsDuration, KindGauge, buildLabels, "Number of seconds spent performing builds"},
		{BuildsSuccess, KindCounter, buildLabels, "Number of builds reporting success"},
		{BuildsFailure, KindCounter, buildLabels, "Number of builds reporting failure"},
		{BuildsError, KindCounter, buildLabels, "Number of builds reporting error"},

		{BuildersRunningTotal, KindGauge, nil, "Total number of builders running"},
		{BuildersRunning, KindGauge, builderLabels, "Number of builders running"},

		// buildset_id is a raw incrementing id, not a meaningful dimension,
		// but it is the only identity the event carries.
		{BuildsetsDuration, KindGauge, buildsetLabels, "Number of seconds spent performing buildsets"},
		{BuildsetsSuccess, KindCounter, buildsetLabels, "Number of buildsets reporting success"},
		{BuildsetsFailure, KindCounter, buildsetLabels, "Number of buildsets reporting failure"},
		{BuildsetsError, KindCounter, buildsetLabels, "Number of buildsets reporting error"},

		{BuildRequestsDuration, KindGauge, buildRequestLabels, "Number of seconds spent performing build requests"},
		{BuildRequestsSuccess, KindCounter, buildRequestLabels, "Number of build requests reporting success"},
		{BuildRequestsFailure, KindCounter, buildRequestLabels, "Number of build requests reporting failure"},
		{BuildRequestsError, KindCounter, buildRequestLabels, "Number of build requests reporting error"},

		{StepsDuration, KindGauge, stepLabels, "Number of seconds spent performing build steps"},
		{StepsSuccess, KindCounter, stepLabels, "Number of steps reporting success"},
		{StepsFailure, KindCounter, stepLabels, "Number of steps reporting failure"},
		{StepsError, KindCounter, stepLabels, "Number of steps reporting error"},

		{WorkersRunningTotal, KindGauge, nil, "Total number of workers running"},
		{WorkersRunning, KindGauge, workerLabels, "Number of workers running"},
	}
}
