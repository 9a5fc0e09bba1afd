package engine

import "errors"

var (
	// ErrInvalidInput covers malformed keypoints, unknown exercise types,
	// bad calibration and empty session ids. Nothing is mutated.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownSession is returned by SubmitFrame for an id with no session.
	ErrUnknownSession = errors.New("session not found")
	// ErrSessionExists is returned by CreateSession for a live id.
	ErrSessionExists = errors.New("session already exists")
	// ErrStoreFull is returned when the session cap is reached.
	ErrStoreFull = errors.New("session limit reached")
)
