package scanning

import "errors"

var (
	// ErrEngineUnavailable indicates the scanning engine could not be reached or
	// rejected a call for reasons unrelated to the target.
	ErrEngineUnavailable = errors.New("scanning engine unavailable")

	// ErrInvalidTarget indicates the target was rejected, either locally or by the engine.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrMalformedReport indicates the injection tool's output did not match the
	// expected block structure. No partial findings accompany this error.
	ErrMalformedReport = errors.New("malformed injection report")

	// ErrSubprocessFailure indicates the injection tool exited abnormally or
	// produced no output.
	ErrSubprocessFailure = errors.New("injection tool failed")

	// ErrRunNotFound is returned by a RunRepository when no run matches the id.
	ErrRunNotFound = errors.New("scan run not found")
)
