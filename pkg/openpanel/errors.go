package openpanel

import "errors"

// ErrClientIDRequired is returned by New when Options.ClientID is empty.
var ErrClientIDRequired = errors.New("openpanel: client id is required")
