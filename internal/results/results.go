// Package results maps host result codes onto the outcome classes reported
// by the exporter.
package results

import "strconv"

// Code is a build/step result code as reported by the host.
type Code int

// Host result codes.
const (
	Success   Code = 0
	Warnings  Code = 1
	Failure   Code = 2
	Skipped   Code = 3
	Exception Code = 4
	Retry     Code = 5
	Cancelled Code = 6
)

var codeNames = map[Code]string{
	Success:   "success",
	Warnings:  "warnings",
	Failure:   "failure",
	Skipped:   "skipped",
	Exception: "exception",
	Retry:     "retry",
	Cancelled: "cancelled",
}

// String returns the host name for the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(c)) + ")"
}

// Outcome is the class a result code resolves to.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
	// OutcomePending is only produced for Retry.
	OutcomePending Outcome = "pending"
)

var outcomes = map[Code]Outcome{
	Success:   OutcomeSuccess,
	Warnings:  OutcomeSuccess,
	Skipped:   OutcomeSuccess,
	Failure:   OutcomeFailure,
	Exception: OutcomeError,
	Cancelled: OutcomeError,
	Retry:     OutcomePending,
}

// Classify resolves a result code to its outcome. Unknown codes are errors.
func Classify(c Code) Outcome {
	if o, ok := outcomes[c]; ok {
		return o
	}
	return OutcomeError
}

// Bucket returns the tri-state class used for metrics: pending counts as error.
func (o Outcome) Bucket() Outcome {
	switch o {
	case OutcomeSuccess, OutcomeFailure:
		return o
	default:
		return OutcomeError
	}
}
