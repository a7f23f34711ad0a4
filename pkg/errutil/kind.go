package errutil

import (
	"context"
	"errors"
)

// ErrorKind classifies an error so callers can branch on it.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAlreadyExists
	KindNotFound
	KindDependency
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Kind resolves the kind of err. Errors that are not a BaseError are
// treated as internal.
func Kind(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindDependency
	}

	be, ok := AsBaseError(err)
	if !ok {
		return KindInternal
	}

	switch be.Code {
	case StatusBadRequest, StatusValidationFailed, StatusUnprocessableEntity, StatusPaymentRequired, StatusMethodNotAllowed:
		return KindValidation
	case StatusConflict:
		return KindAlreadyExists
	case StatusNotFound:
		return KindNotFound
	case StatusBadGateway, StatusServiceUnavailable, StatusGatewayTimeout, StatusTimeout:
		return KindDependency
	case StatusUnauthorized, StatusForbidden:
		return KindUnauthorized
	default:
		return KindInternal
	}
}

func IsAlreadyExists(err error) bool { return err != nil && Kind(err) == KindAlreadyExists }
func IsValidation(err error) bool    { return err != nil && Kind(err) == KindValidation }
func IsNotFound(err error) bool      { return err != nil && Kind(err) == KindNotFound }
func IsDependency(err error) bool    { return err != nil && Kind(err) == KindDependency }
