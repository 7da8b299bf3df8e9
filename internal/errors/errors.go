package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidationRejected       = "E100"
	CodeDatabase                 = "E200"
	CodeRateUnavailable          = "E300"
	CodeAmountInvalid            = "E310"
	CodeVerificationInconclusive = "E320"
	CodeSessionCorrupt           = "E400"
	CodeRateLimit                = "E500"
	CodeUnexpected               = "E900"
)

const defaultUserMessage = "Что-то пошло не так. Попробуйте позже"

// Sentinels for errors.Is; matching is by Code.
var (
	ErrValidationRejected       = &AppError{Code: CodeValidationRejected}
	ErrRateUnavailable          = &AppError{Code: CodeRateUnavailable}
	ErrAmountInvalid            = &AppError{Code: CodeAmountInvalid}
	ErrVerificationInconclusive = &AppError{Code: CodeVerificationInconclusive}
	ErrSessionCorrupt           = &AppError{Code: CodeSessionCorrupt}
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is matches any AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func NewValidationRejected(msg string) *AppError {
	return &AppError{
		Code:        CodeValidationRejected,
		Message:     msg,
		UserMessage: "Недопустимое действие. Пожалуйста, используйте предложенные варианты",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewDatabaseError(cause error) *AppError {
	return &AppError{
		Code:        CodeDatabase,
		Message:     "database error",
		UserMessage: "Временная проблема, попробуйте позже",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateUnavailable(symbol string, cause error) *AppError {
	return &AppError{
		Code:        CodeRateUnavailable,
		Message:     fmt.Sprintf("exchange rate unavailable for %s", symbol),
		UserMessage: "Не удалось подготовить оплату. Попробуйте ещё раз",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewAmountInvalid(amount float64) *AppError {
	return &AppError{
		Code:        CodeAmountInvalid,
		Message:     fmt.Sprintf("computed payment amount is invalid: %v", amount),
		UserMessage: "Не удалось подготовить оплату. Попробуйте ещё раз",
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

func NewVerificationInconclusive() *AppError {
	return &AppError{
		Code:        CodeVerificationInconclusive,
		Message:     "payment not observed yet",
		UserMessage: "Оплата пока не найдена. Попробуйте проверить позже",
		Severity:    SeverityLow,
		Retryable:   true,
	}
}

func NewSessionCorrupt(msg string) *AppError {
	return &AppError{
		Code:        CodeSessionCorrupt,
		Message:     msg,
		UserMessage: "Сессия устарела. Начнём заново",
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewUnexpected(cause error) *AppError {
	return &AppError{
		Code:        CodeUnexpected,
		Message:     "unexpected failure",
		UserMessage: defaultUserMessage,
		Severity:    SeverityCritical,
		Retryable:   false,
		cause:       cause,
	}
}

// WithCause returns a copy of e wrapping cause.
func (e *AppError) WithCause(cause error) *AppError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.cause = cause
	return &cp
}
