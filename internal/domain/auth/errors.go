package auth

import "errors"

// ErrEmailExists indicates a duplicate email address.
var ErrEmailExists = errors.New("email already exists")

// ErrExternalIDExists indicates the provider account is already linked to a record.
var ErrExternalIDExists = errors.New("external id already linked")
