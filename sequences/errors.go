package sequences

import "errors"

var (
	// ErrInvalidArgument reports a configuration that an algorithm cannot run
	// with, such as a linear constraint table of the wrong length or a right
	// window on a finder that only supports left context.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMismatchedModels reports component models of a FactoredSequenceModel
	// that disagree on length or window sizes.
	ErrMismatchedModels = errors.New("mismatched sequence models")
)
