package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidPeriod        ErrorCode = 102
	ErrCodeInvalidMultiplier    ErrorCode = 103
	ErrCodeInvalidThreshold     ErrorCode = 104
	ErrCodeInvalidLookback      ErrorCode = 105
	ErrCodeInvalidFibLadder     ErrorCode = 106
	ErrCodeInsufficientData     ErrorCode = 107
	ErrCodeMissingParameter     ErrorCode = 108

	// Cache errors (200-299)
	ErrCodeCacheKeyNotFound ErrorCode = 200
	ErrCodeCacheNotWarmed   ErrorCode = 201
	ErrCodeDedupUnavailable ErrorCode = 202

	// Signal errors (300-399)
	ErrCodeInvalidSignal       ErrorCode = 300
	ErrCodeUnsupportedStrategy ErrorCode = 301

	// Trading errors (400-499)
	ErrCodeInvalidQuantity   ErrorCode = 400
	ErrCodePositionNotFound  ErrorCode = 401
	ErrCodeInvalidStopLoss   ErrorCode = 402
	ErrCodeInvalidTakeProfit ErrorCode = 403

	// Backtest errors (500-599)
	ErrCodeBacktestNoCandles   ErrorCode = 500
	ErrCodeBacktestConfigError ErrorCode = 501

	// Data source errors (600-699)
	ErrCodeDataSourceUnavailable ErrorCode = 600
	ErrCodeQueryFailed           ErrorCode = 601
	ErrCodeCandleParseFailed     ErrorCode = 602
	ErrCodeDownloadFailed        ErrorCode = 603
)
