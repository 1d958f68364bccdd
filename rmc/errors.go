package rmc

import "errors"

var (
	// ErrInvalidPartialSig is returned by HandlePartialSig when the
	// claimed signature does not verify against the signer's key.
	ErrInvalidPartialSig = errors.New("rmc: invalid partial signature")
	// ErrInvalidMultisignature is returned by HandleComplete when the
	// claimed multisignature does not verify as complete.
	ErrInvalidMultisignature = errors.New("rmc: invalid or incomplete multisignature")
)
