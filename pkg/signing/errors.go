package signing

import "fmt"

// Error is the signing package's closed error taxonomy, mirrored after the
// original Rust SigningError enum's Display text so startup failures and
// sign-time failures keep stable, greppable messages.
type Error struct {
	kind    errorKind
	message string
}

type errorKind int

const (
	kindAccess errorKind = iota
	kindSigningFailure
	kindParsing
	kindUnknownAuthority
	kindDuplicatedKey
	kindIdenticalUserAndHostKey
	kindSignerDoesNotHaveSSHKeys
	kindSignerMissingRequiredSSHKeys
)

func (e *Error) Error() string { return e.message }

func errAccess(detail string) *Error {
	return &Error{kind: kindAccess, message: fmt.Sprintf("could not access the private key material: %s", detail)}
}

func errSigningFailure() *Error {
	return &Error{kind: kindSigningFailure, message: "the signing operation on the provided certificate failed"}
}

func errParsing() *Error {
	return &Error{kind: kindParsing, message: "the signature could not be parsed"}
}

func errUnknownAuthority(authority string) *Error {
	return &Error{kind: kindUnknownAuthority, message: fmt.Sprintf("unknown authority was requested for a signing operation: %s", authority)}
}

func errDuplicatedKey(a1, a2 string) *Error {
	return &Error{kind: kindDuplicatedKey, message: fmt.Sprintf(
		"authorities %s and %s share at least one key; this is almost always a misconfiguration leading to access that is not correctly restricted", a1, a2)}
}

func errIdenticalUserAndHostKey(authority string) *Error {
	return &Error{kind: kindIdenticalUserAndHostKey, message: fmt.Sprintf(
		"authority %s has an identical key for both user and host certificates; use separate keys for each", authority)}
}

func errSignerDoesNotHaveSSHKeys() *Error {
	return &Error{kind: kindSignerDoesNotHaveSSHKeys, message: "signer was not configured with SSH keys so it cannot create an SSH certificate"}
}

func errSignerMissingRequiredSSHKeys() *Error {
	return &Error{kind: kindSignerMissingRequiredSSHKeys, message: "signer did not have both user and host keys defined"}
}

// IsUnknownAuthority reports whether err is the UnknownAuthority variant,
// which callers map to errtax.NotAuthorized.
func IsUnknownAuthority(err error) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kindUnknownAuthority
}

// IsSignerDoesNotHaveSSHKeys reports the SignerDoesNotHaveSSHKeys variant,
// which callers map to errtax.NotAuthorized.
func IsSignerDoesNotHaveSSHKeys(err error) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kindSignerDoesNotHaveSSHKeys
}
