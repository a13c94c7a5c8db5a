package common

import (
	"errors"
	"fmt"
)

// TransportError covers network failures, timeouts and 5xx answers. It is transient.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationError is a rejected signature, key or timestamp. It is fatal and never retried.
type AuthenticationError struct {
	Op      string
	Code    int
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication %s: code %d: %s", e.Op, e.Code, e.Message)
}

// VenueRejection is a business-rule refusal of an otherwise valid request.
type VenueRejection struct {
	Op      string
	Code    int
	Message string
}

func (e *VenueRejection) Error() string {
	return fmt.Sprintf("venue rejected %s: code %d: %s", e.Op, e.Code, e.Message)
}

// IsAuthentication reports whether err carries an AuthenticationError.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is a transport failure worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is a venue business-rule rejection.
func IsRejection(err error) bool {
	var vr *VenueRejection
	return errors.As(err, &vr)
}
