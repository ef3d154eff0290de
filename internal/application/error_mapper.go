package application

import (
	"context"
	"errors"
	"net/http"

	"github.com/servilink/escrow-engine/internal/domain"
)

// ToHTTPStatus maps an error to the status code returned to API callers.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeNotFound:
			return http.StatusNotFound
		case domain.ErrCodeForbidden:
			return http.StatusForbidden
		case domain.ErrCodeInvalidAmount, domain.ErrCodeMissingField:
			return http.StatusBadRequest
		case domain.ErrCodeInvalidState, domain.ErrCodeConflict,
			domain.ErrCodeTooEarly, domain.ErrCodeInvalidTransition:
			return http.StatusConflict
		}
	}

	if _, ok := IsGatewayError(err); ok {
		return http.StatusBadGateway
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}

	return http.StatusInternalServerError
}

// ToErrorCode maps an error to the stable code exposed in API responses.
func ToErrorCode(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}

	if _, ok := IsGatewayError(err); ok {
		return ErrCodeGateway
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}

	return ErrCodeInternal
}

// SafeMessage returns a message suitable for API callers. Gateway and internal
// details stay in the logs.
func SafeMessage(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Message
	}

	if _, ok := IsGatewayError(err); ok {
		return "payment gateway request failed"
	}

	return "an internal error occurred"
}
