package nn

import "github.com/pkg/errors"

// Configuration and state errors. Call sites wrap these with context, so
// match them with errors.Is.
var (
	ErrInvalidNumGaussians = errors.New("num_gaussians must be at least 1")
	ErrScaleLength         = errors.New("initial scale length must equal num_gaussians")
	ErrWeightsLength       = errors.New("fixed weights length must equal num_gaussians")
	ErrInvalidWeights      = errors.New("weights must be either learnable or an explicit fixed sequence")
	ErrInvalidEpsilon      = errors.New("epsilon must be positive")
	ErrInvalidNumHeads     = errors.New("num_heads must be at least 1")
	ErrTooManyHeads        = errors.New("input extent along norm_axis must be at least num_heads")
	ErrIndivisibleExtent   = errors.New("input extent along norm_axis is not divisible by num_heads")
	ErrInvalidAxis         = errors.New("norm_axis out of range for input")
	ErrStateDict           = errors.New("state dict does not match module")
)
