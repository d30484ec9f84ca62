// Package errors defines the failure taxonomy shared by all services.
//
// Callers classify failures with errors.Is against these sentinels;
// services wrap them with operation context using %w.
package errors

import "fmt"

var (
	// ErrNotFound reports that a referenced entity does not exist.
	ErrNotFound = fmt.Errorf("not found")
	// ErrForbidden reports an authorization or membership failure.
	ErrForbidden = fmt.Errorf("forbidden")
	// ErrInvalidArgument reports malformed input or a policy violation,
	// such as an expired edit window or removing the last member.
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	// ErrAlreadyExists reports a duplicate, such as adding an existing member.
	ErrAlreadyExists = fmt.Errorf("already exists")
	// ErrUnavailable reports a downstream store or broker failure.
	ErrUnavailable = fmt.Errorf("unavailable")

	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)
