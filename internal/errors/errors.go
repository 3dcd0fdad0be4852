package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrNameRequired    = &AppError{Code: "VALID_001", Message: "name is required and must be at most 50 characters"}
	ErrQuantityInvalid = &AppError{Code: "VALID_002", Message: "quantity must be a positive integer"}
	ErrTimesRequired   = &AppError{Code: "VALID_003", Message: "at least one scheduled time is required"}
	ErrTimeFormat      = &AppError{Code: "VALID_004", Message: "scheduled times must be unique HH:MM values"}
	ErrPhoneRequired   = &AppError{Code: "VALID_005", Message: "phone number is required"}

	ErrMedicineNotFound    = &AppError{Code: "MED_001", Message: "medicine not found"}
	ErrPatientNotFound     = &AppError{Code: "REG_001", Message: "patient not found"}
	ErrResponsibleNotFound = &AppError{Code: "REG_002", Message: "responsible person does not exist"}

	ErrLogNotFound = &AppError{Code: "LOG_001", Message: "no daily log for that date"}

	ErrStorage         = &AppError{Code: "STORE_001", Message: "storage operation failed"}
	ErrStorageDecode   = &AppError{Code: "STORE_002", Message: "stored collection is corrupted"}
	ErrReminderStorage = &AppError{Code: "REMIND_001", Message: "reminder schedule update failed"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
