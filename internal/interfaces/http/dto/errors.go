package dto

import "net/http"

// Ledger error codes, as carried by shared.DomainError
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeDealNotFound        = "DEAL_NOT_FOUND"
	ErrCodeDuplicatePeriod     = "DUPLICATE_PERIOD"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeCannotDeletePaid    = "CANNOT_DELETE_PAID"
	ErrCodeInvalidExchangeRate = "INVALID_EXCHANGE_RATE"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInvalidCurrency     = "INVALID_CURRENCY"
	ErrCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
)

// Transport error codes
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRunInProgress   = "RUN_IN_PROGRESS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeDealNotFound:        http.StatusNotFound,
	ErrCodeDuplicatePeriod:     http.StatusConflict,
	ErrCodeInvalidTransition:   http.StatusConflict,
	ErrCodeCannotDeletePaid:    http.StatusConflict,
	ErrCodeRunInProgress:       http.StatusConflict,
	ErrCodeInvalidExchangeRate: http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidCurrency:     http.StatusBadRequest,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeStorageUnavailable:  http.StatusServiceUnavailable,
	ErrCodeInternal:            http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
