// Package teamauth implements the pairwise connection protocol of a
// decentralized team-authentication system: two peer devices establish
// mutual team membership, admit newcomers holding only an invitation
// secret, reconcile a team-membership signature chain, and derive a
// shared session key for encrypted application messages.
//
// The protocol itself lives in the connect subpackage; this package
// holds the error taxonomy shared across every subpackage.
package teamauth

import "fmt"

// Code enumerates the protocol-terminal error taxonomy from the
// connection protocol's error handling design.
type Code string

const (
	// Identity errors.
	ErrMemberUnknown       Code = "MEMBER_UNKNOWN"
	ErrMemberRemoved       Code = "MEMBER_REMOVED"
	ErrDeviceUnknown       Code = "DEVICE_UNKNOWN"
	ErrDeviceRemoved       Code = "DEVICE_REMOVED"
	ErrIdentityProofInvalid Code = "IDENTITY_PROOF_INVALID"

	// Invitation errors.
	ErrInvitationInvalid Code = "INVITATION_INVALID"
	ErrInvitationRevoked Code = "INVITATION_REVOKED"
	ErrWrongTeam         Code = "WRONG_TEAM"
	ErrNeitherIsMember   Code = "NEITHER_IS_MEMBER"

	// Membership errors.
	ErrPeerRemoved Code = "PEER_REMOVED"

	// Protocol errors.
	ErrTimeout          Code = "TIMEOUT"
	ErrDecryptionFailed Code = "DECRYPTION_FAILED"
	ErrPeerError        Code = "PEER_ERROR"
)

// Error is the single structured error type every connection-terminal
// failure is reported as, both internally (context.error) and on the
// wire (the ERROR message payload).
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// WithDetail attaches a detail key/value and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError constructs an Error with the given code, message, and
// optional wrapped cause.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is allows errors.Is(err, &teamauth.Error{Code: ...}) style comparisons by
// code rather than by pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the Code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var te *Error
	if e, ok := err.(*Error); ok {
		te = e
	} else {
		return "", false
	}
	return te.Code, true
}
