package pitch

import stderrors "errors"

// Fatal-to-start error taxonomy. These are wrapped with component and
// category context by the session; match with errors.Is.
var (
	// ErrEstimatorUnavailable means the frequency estimator could not
	// be constructed.
	ErrEstimatorUnavailable = stderrors.New("frequency estimator unavailable")

	// ErrAudioUnsupported means the platform lacks the audio primitives
	// required for capture.
	ErrAudioUnsupported = stderrors.New("platform audio not supported")

	// ErrMicrophoneDenied means microphone access was refused or the
	// capture device could not be opened.
	ErrMicrophoneDenied = stderrors.New("microphone access denied")

	// ErrAlreadyRunning is returned by Start on a running session. A
	// warning, not a fatal condition; the session keeps running.
	ErrAlreadyRunning = stderrors.New("session already running")
)
