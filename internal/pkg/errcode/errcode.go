package errcode

import (
	"net/http"

	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrExtraction
)

// HTTPStatus maps an error kind to the response status.
func HTTPStatus(kind appErr.Kind) int {
	switch kind {
	case appErr.KindAuthentication:
		return http.StatusUnauthorized
	case appErr.KindAuthorization:
		return http.StatusForbidden
	case appErr.KindValidation:
		return http.StatusBadRequest
	case appErr.KindExtraction:
		return http.StatusUnprocessableEntity
	case appErr.KindNotFound:
		return http.StatusNotFound
	case appErr.KindConflict:
		return http.StatusConflict
	case appErr.KindTooMany:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func FromKind(kind appErr.Kind) int {
	switch kind {
	case appErr.KindAuthentication:
		return ErrUnauthorized
	case appErr.KindAuthorization:
		return ErrForbidden
	case appErr.KindValidation:
		return ErrInvalid
	case appErr.KindExtraction:
		return ErrExtraction
	case appErr.KindNotFound:
		return ErrNotFound
	case appErr.KindConflict:
		return ErrConflict
	case appErr.KindTooMany:
		return ErrTooMany
	case appErr.KindInternal:
		return ErrInternal
	}
	return ErrUnknown
}
