package verify

import "errors"

// ErrUnknownAlgorithm is returned when an algorithm name is not one of
// the supported digests. Callers check it with errors.Is to turn a typo
// in --hash into a clean startup failure.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm: supported values are sha256 and blake2b")
