package domain

import "fmt"

// MalformedRecordError reports an input row that cannot be loaded.
type MalformedRecordError struct {
	Row    int
	Column string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("malformed record at row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("malformed record at row %d, column %q: %s", e.Row, e.Column, e.Reason)
}

// InsufficientTrainingDataError is returned by fitting when the judgments lack
// an example of a class. More labels fix it.
type InsufficientTrainingDataError struct {
	Matches   int
	Distincts int
}

func (e *InsufficientTrainingDataError) Error() string {
	return fmt.Sprintf("insufficient training data: need at least one match and one distinct judgment (have %d match, %d distinct)",
		e.Matches, e.Distincts)
}

// EmptyInputError is returned when there is nothing to cluster.
type EmptyInputError struct {
	Stage string
}

func (e *EmptyInputError) Error() string {
	if e.Stage == "" {
		return "empty input: no records"
	}
	return fmt.Sprintf("empty input: no records to %s", e.Stage)
}

// UnknownIdentifierError marks a row whose identifier was never presented to
// the partitioner. It indicates a wiring defect.
type UnknownIdentifierError struct {
	ID ID
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q: row was never presented to the partitioner", string(e.ID))
}

// InvalidThresholdError reports a threshold outside (0,1).
type InvalidThresholdError struct {
	Threshold float64
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("threshold must be between 0 and 1 exclusive (got %.3f)", e.Threshold)
}
