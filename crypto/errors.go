package crypto

import "errors"

// errShortMultisig is returned when a multisignature encoding is truncated.
var errShortMultisig = errors.New("crypto: truncated multisignature encoding")
