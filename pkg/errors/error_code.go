package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidTimeRange     ErrorCode = 103

	// Market data errors (200-299)
	ErrCodeMissingMarketData     ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeNoDataFound           ErrorCode = 203

	// Trading errors (300-399)
	ErrCodeOrderFailed      ErrorCode = 300
	ErrCodePositionNotFound ErrorCode = 301

	// Backtest errors (400-499)
	ErrCodeBacktestStateNil     ErrorCode = 400
	ErrCodeBacktestInitFailed   ErrorCode = 401
	ErrCodeBacktestConfigError  ErrorCode = 402
	ErrCodeBacktestNoDatasource ErrorCode = 403
	ErrCodeBacktestNoStrategy   ErrorCode = 404
	ErrCodeBacktestCancelled    ErrorCode = 405
)
