package engine

import "errors"

// Error kinds the core raises. Callers should compare with errors.Is since
// alloc/free paths wrap these with fmt.Errorf("%w: ...") for context.
var (
	// ErrInvalidArg covers a frequency <= 0, a duty outside (0, 1), or a
	// channel index out of [0,7].
	ErrInvalidArg = errors.New("rmtgen: invalid argument")

	// ErrSize means the solved (P, NH, NL) or the resulting mem_blocks
	// cannot be represented by the hardware (NH or NL < 1, or mem_blocks > 8).
	ErrSize = errors.New("rmtgen: requested frequency/duty cannot be represented")

	// ErrNoMem means no free GPIO pad, no sufficiently wide free channel
	// run, or item buffer allocation failed.
	ErrNoMem = errors.New("rmtgen: no free resource")

	// ErrHardware means the peripheral backend rejected a configure/start/
	// stop call.
	ErrHardware = errors.New("rmtgen: peripheral rejected request")
)
