package flow

import "fmt"

// FailureCode classifies flow-terminal failures.
type FailureCode string

const (
	CodeBrowserUnavailable FailureCode = "browser_unavailable"
	CodeLaunchFailure      FailureCode = "launch_failure"
	CodeCaptchaTimeout     FailureCode = "captcha_timeout"
	CodeNoCredentialFound  FailureCode = "no_credential_found"
	CodeCancelled          FailureCode = "cancelled"
	CodeInternal           FailureCode = "internal"
)

// Error is a flow-terminal failure carrying a human-readable message.
// Automation-internal errors are converted into one of these at the
// state-transition boundary; raw errors never reach UI code.
type Error struct {
	Code    FailureCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func failure(code FailureCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
