// Package etl imports the RAWG and IGDB catalogs, resolves their cross references and
// drives the full ingestion pipeline.
package etl

import (
	"errors"
)

// ErrFatalIngestion aborts a run: the catalog could not be read or decoded, or the run
// was cancelled while a record was being written.
var ErrFatalIngestion = errors.New("fatal ingestion error")

// Outcome classifies how one record was handled.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkip
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkip:
		return "skip"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the explicit outcome of processing one record. A skip carrying an error
// is a failed record; a skip without one is an expected outcome such as a duplicate.
type Result struct {
	Outcome Outcome
	GameID  int64
	Reason  string
	Err     error
}

// Success is an inserted record.
func Success(gameID int64) Result {
	return Result{Outcome: OutcomeSuccess, GameID: gameID}
}

// Skip is a record left out on purpose.
func Skip(reason string) Result {
	return Result{Outcome: OutcomeSkip, Reason: reason}
}

// Fail is a record that could not be processed. The batch continues.
func Fail(reason string, err error) Result {
	return Result{Outcome: OutcomeSkip, Reason: reason, Err: err}
}

// Fatal stops the batch.
func Fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Err: err}
}

// Failed reports whether the record was skipped because of an error.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeSkip && r.Err != nil
}
