package orchestration

import "errors"

var (
	// ErrUnexpectedOutputFormat means a producer workflow output lacks the expected structure.
	ErrUnexpectedOutputFormat = errors.New("unexpected workflow output format")

	// ErrAmbiguousGroup means a library group resolves to more than one value that must be unique.
	ErrAmbiguousGroup = errors.New("ambiguous library group")

	ErrUnexpectedInputFormat = errors.New("unexpected workflow input format")

	ErrMissingSequenceRun = errors.New("workflow has no sequence run")
)
