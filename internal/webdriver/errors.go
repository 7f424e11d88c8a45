package webdriver

import (
	"fmt"
	"net/http"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/tidwall/gjson"
)

// W3C WebDriver error codes.
const (
	CodeElementClickIntercepted = "element click intercepted"
	CodeElementNotInteractable  = "element not interactable"
	CodeInsecureCertificate     = "insecure certificate"
	CodeInvalidArgument         = "invalid argument"
	CodeInvalidCookieDomain     = "invalid cookie domain"
	CodeInvalidElementState     = "invalid element state"
	CodeInvalidSelector         = "invalid selector"
	CodeInvalidSessionID        = "invalid session id"
	CodeJavascriptError         = "javascript error"
	CodeMoveTargetOutOfBounds   = "move target out of bounds"
	CodeNoSuchAlert             = "no such alert"
	CodeNoSuchCookie            = "no such cookie"
	CodeNoSuchElement           = "no such element"
	CodeNoSuchFrame             = "no such frame"
	CodeNoSuchWindow            = "no such window"
	CodeNoSuchShadowRoot        = "no such shadow root"
	CodeScriptTimeout           = "script timeout"
	CodeSessionNotCreated       = "session not created"
	CodeStaleElementReference   = "stale element reference"
	CodeDetachedShadowRoot      = "detached shadow root"
	CodeTimeout                 = "timeout"
	CodeUnableToSetCookie       = "unable to set cookie"
	CodeUnableToCaptureScreen   = "unable to capture screen"
	CodeUnexpectedAlertOpen     = "unexpected alert open"
	CodeUnknownCommand          = "unknown command"
	CodeUnknownError            = "unknown error"
	CodeUnknownMethod           = "unknown method"
	CodeUnsupportedOperation    = "unsupported operation"
)

// codeStatus maps each error code to the HTTP status a conforming remote end
// answers with.
var codeStatus = map[string]int{
	CodeElementClickIntercepted: http.StatusBadRequest,
	CodeElementNotInteractable:  http.StatusBadRequest,
	CodeInsecureCertificate:     http.StatusBadRequest,
	CodeInvalidArgument:         http.StatusBadRequest,
	CodeInvalidCookieDomain:     http.StatusBadRequest,
	CodeInvalidElementState:     http.StatusBadRequest,
	CodeInvalidSelector:         http.StatusBadRequest,
	CodeInvalidSessionID:        http.StatusNotFound,
	CodeJavascriptError:         http.StatusInternalServerError,
	CodeMoveTargetOutOfBounds:   http.StatusInternalServerError,
	CodeNoSuchAlert:             http.StatusNotFound,
	CodeNoSuchCookie:            http.StatusNotFound,
	CodeNoSuchElement:           http.StatusNotFound,
	CodeNoSuchFrame:             http.StatusNotFound,
	CodeNoSuchWindow:            http.StatusNotFound,
	CodeNoSuchShadowRoot:        http.StatusNotFound,
	CodeScriptTimeout:           http.StatusInternalServerError,
	CodeSessionNotCreated:       http.StatusInternalServerError,
	CodeStaleElementReference:   http.StatusNotFound,
	CodeDetachedShadowRoot:      http.StatusNotFound,
	CodeTimeout:                 http.StatusInternalServerError,
	CodeUnableToSetCookie:       http.StatusInternalServerError,
	CodeUnableToCaptureScreen:   http.StatusInternalServerError,
	CodeUnexpectedAlertOpen:     http.StatusInternalServerError,
	CodeUnknownCommand:          http.StatusNotFound,
	CodeUnknownError:            http.StatusInternalServerError,
	CodeUnknownMethod:           http.StatusMethodNotAllowed,
	CodeUnsupportedOperation:    http.StatusInternalServerError,
}

// StatusForCode returns the HTTP status for a W3C error code, or 500 for
// codes outside the table.
func StatusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// KnownCode reports whether code is a W3C error code.
func KnownCode(code string) bool {
	_, ok := codeStatus[code]
	return ok
}

// ProtocolError is an error envelope returned by a remote end:
//
//	{"value": {"error": "...", "message": "...", "stacktrace": "..."}}
type ProtocolError struct {
	Code       string
	Message    string
	Stacktrace string
	// Status is the HTTP status of the response that carried the error.
	Status int
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webdriver: %s (HTTP %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("webdriver: %s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

// Is reports an invalid session as an unhealthy driver so callers can
// retire instead of release.
func (e *ProtocolError) Is(target error) bool {
	return target == errors.ErrDriverUnhealthy && e.Code == CodeInvalidSessionID
}

// decodeError extracts a ProtocolError from a response body. It returns nil
// when the body carries no error and the status is a success.
func decodeError(status int, body []byte) *ProtocolError {
	value := gjson.GetBytes(body, "value")
	code := value.Get("error").String()
	if code == "" && status < http.StatusBadRequest {
		return nil
	}
	if code == "" {
		code = CodeUnknownError
	}
	msg := value.Get("message").String()
	if msg == "" && !value.IsObject() {
		msg = string(body)
	}
	return &ProtocolError{
		Code:       code,
		Message:    msg,
		Stacktrace: value.Get("stacktrace").String(),
		Status:     status,
	}
}

// IsDriverUnhealthy reports whether err means the driver behind a session
// can no longer be trusted: the transport failed or the remote end no longer
// knows the session.
func IsDriverUnhealthy(err error) bool {
	return err != nil && errors.Is(err, errors.ErrDriverUnhealthy)
}
