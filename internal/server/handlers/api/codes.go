package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeNotFound       = "E_NOT_FOUND"       // route or resource not found

	// Auth errors
	CodeAuthInvalidCredentials    = "E_AUTH_INVALID_CREDENTIALS"     // peer token or access token is invalid, expired, or malformed.
	CodeAuthTokenGenerationFailed = "E_AUTH_TOKEN_GENERATION_FAILED" // a failure while signing a new access token.

	// History errors
	CodeHistoryNotFound     = "E_HISTORY_NOT_FOUND"     // the path or version is not in the vault.
	CodeHistoryInvalidPath  = "E_HISTORY_INVALID_PATH"  // the path is empty, absolute, or escapes the vault.
	CodeHistoryQueryFailed  = "E_HISTORY_QUERY_FAILED"  // the vault failed while answering a history query.
	CodeHistoryInvalidQuery = "E_HISTORY_INVALID_QUERY" // bad mode, pattern, or timestamp.

	// Device errors
	CodeDeviceListFailed    = "E_DEVICE_LIST_FAILED"    // the device registry could not be read.
	CodeDeviceChangesFailed = "E_DEVICE_CHANGES_FAILED" // the device change log could not be read.
)
