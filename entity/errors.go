package entity

import (
	"errors"

	"newsletter/pkg/errutil"
)

var (
	ErrInvalidConfiguration   = errutil.BadRequestError(errors.New("invalid configuration"))
	ErrNoRecipients           = errutil.BadRequestError(errors.New("no valid recipients"))
	ErrInvalidStateTransition = errutil.ConflictError(errors.New("invalid state transition"))
	ErrChunksOutstanding      = errutil.ConflictError(errors.New("chunks outstanding"))
	ErrAlreadySending         = errutil.ConflictError(errors.New("newsletter is already sending"))
	ErrInvalidRecoveryAction  = errutil.ConflictError(errors.New("invalid recovery action"))
)
