package session

import (
	"net/http"

	"gameauth/internal/domain"
)

type errorMapping struct {
	status  int
	message string
}

// Messages are deliberately generic; detail stays in the server log.
var errorMappings = map[domain.ErrorCode]errorMapping{
	domain.CodeInvalidAssertion: {http.StatusUnauthorized, "Identity assertion could not be verified"},
	domain.CodeBanned:           {http.StatusForbidden, "Account is banned"},
	domain.CodeInvalidRefresh:   {http.StatusUnauthorized, "Refresh token is invalid, please log in again"},
	domain.CodeRefreshExpired:   {http.StatusUnauthorized, "Session expired, please log in again"},
	domain.CodeDeviceMismatch:   {http.StatusUnauthorized, "Refresh token was issued to another device"},
	domain.CodeConfig:           {http.StatusInternalServerError, "Service misconfigured"},
	domain.CodeStorage:          {http.StatusServiceUnavailable, "Temporarily unavailable, try again"},
	domain.CodeRotationFailed:   {http.StatusServiceUnavailable, "Could not issue session, try again"},
	domain.CodeTokenExpired:     {http.StatusUnauthorized, "Access token expired"},
	domain.CodeTokenInvalid:     {http.StatusUnauthorized, "Access token is invalid"},
	domain.CodeValidation:       {http.StatusBadRequest, "Invalid request body"},
	domain.CodeUserNotFound:     {http.StatusNotFound, "User not found"},
	domain.CodeRateLimited:      {http.StatusTooManyRequests, "Too many requests"},
}

// httpError maps err onto status, code and client message. Untagged errors are storage failures.
func httpError(err error) (int, domain.ErrorCode, string) {
	code := domain.CodeOf(err)
	m, ok := errorMappings[code]
	if !ok {
		code = domain.CodeStorage
		m = errorMappings[code]
	}
	return m.status, code, m.message
}
