package signature

import "errors"

// Registry validation errors.
// These errors are returned by Registry.Register and related methods and
// are the only fatal error class in the engine: a malformed signature
// would make matching nondeterministic, so the engine refuses to start
// rather than scan with it.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances at each call site. This allows callers to
// use errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrEmptyTag is returned when a signature has no format tag.
	ErrEmptyTag = errors.New("signature has empty tag")

	// ErrNoPatterns is returned when a signature has no byte patterns.
	// A signature with nothing to match can never produce a candidate.
	ErrNoPatterns = errors.New("signature has no patterns")

	// ErrEmptyPattern is returned when any pattern is zero-length.
	// An empty pattern would match at every offset of every source.
	ErrEmptyPattern = errors.New("signature has empty pattern")

	// ErrInvalidSizeBounds is returned when size bounds are negative or
	// the minimum exceeds the maximum.
	ErrInvalidSizeBounds = errors.New("invalid size bounds: min must not exceed max and both must be non-negative")

	// ErrDuplicateTag is returned when registering a tag that already
	// exists. Extending an existing format goes through SetSizeBounds or
	// a new tag, never silent pattern merging.
	ErrDuplicateTag = errors.New("signature tag already registered")

	// ErrUnknownTag is returned when a tag filter or bounds override
	// names a tag that is not in the registry.
	ErrUnknownTag = errors.New("unknown signature tag")
)
