package source

import (
	"errors"
	"fmt"
)

// Protocol identifies the mail protocol a transport speaks.
type Protocol string

const (
	ProtocolSMTP Protocol = "smtp"
	ProtocolIMAP Protocol = "imap"
)

// AuthError indicates that a mail server rejected the configured
// credentials.
type AuthError struct {
	Protocol Protocol
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Protocol, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
