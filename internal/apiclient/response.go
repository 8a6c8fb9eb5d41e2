package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Problem классифицирует неуспешный результат вызова.
type Problem int

const (
	// ProblemNone — ответ 2xx.
	ProblemNone Problem = iota
	// ProblemClient — ответ 4xx.
	ProblemClient
	// ProblemServer — ответ 5xx.
	ProblemServer
	// ProblemTimeout — истёк таймаут вызова.
	ProblemTimeout
	// ProblemConnection — не удалось установить соединение (DNS, dial).
	ProblemConnection
	// ProblemNetwork — соединение оборвалось или ответ не прочитан.
	ProblemNetwork
	// ProblemCancel — вызов отменён через контекст.
	ProblemCancel
	// ProblemUnknown — всё остальное (в т.ч. отказ request-трансформа).
	ProblemUnknown
)

func (p Problem) String() string {
	switch p {
	case ProblemNone:
		return "none"
	case ProblemClient:
		return "client_error"
	case ProblemServer:
		return "server_error"
	case ProblemTimeout:
		return "timeout_error"
	case ProblemConnection:
		return "connection_error"
	case ProblemNetwork:
		return "network_error"
	case ProblemCancel:
		return "cancel_error"
	default:
		return "unknown_error"
	}
}

// Response — нормализованный результат вызова.
// Успех (OK) и неудача различаются только через Problem; вызывающий код
// обязан ветвиться явно.
type Response struct {
	Status   int
	Header   http.Header
	Data     []byte
	Problem  Problem
	Err      error // транспортная ошибка, если ответа не было
	Request  *Request
	Duration time.Duration
}

// OK — true только для ответов 2xx.
func (r *Response) OK() bool {
	return r != nil && r.Problem == ProblemNone
}

// Decode разбирает тело ответа как JSON.
func (r *Response) Decode(v any) error {
	const op = "apiclient.Response.Decode"

	if len(r.Data) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyBody)
	}

	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AsError возвращает nil для успешного ответа и *Error в противном случае.
func (r *Response) AsError() error {
	if r.OK() {
		return nil
	}

	e := &Error{
		Status:  r.Status,
		Problem: r.Problem,
		Message: serverMessage(r.Data),
		Err:     r.Err,
	}
	if r.Request != nil {
		e.Method = r.Request.Method
		e.Path = r.Request.Path
	}

	return e
}

var (
	// ErrEmptyBody — в ответе нет тела, а вызывающий ждёт JSON.
	ErrEmptyBody = errors.New("empty response body")
)

// Error — неуспешный вызов API.
type Error struct {
	Method  string
	Path    string
	Status  int
	Problem Problem
	// Message — сообщение сервера из тела ответа (message/error/msg), если было.
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Problem)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Unauthorized — сервер ответил 401.
func (e *Error) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// StatusOf достаёт HTTP-статус из цепочки ошибок (0, если статуса нет).
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}

	return 0
}

// ProblemOf достаёт Problem из цепочки ошибок.
func ProblemOf(err error) Problem {
	var e *Error
	if errors.As(err, &e) {
		return e.Problem
	}

	return ProblemUnknown
}

// serverMessage вытаскивает текст ошибки из типовых полей тела.
func serverMessage(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}

	switch {
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	default:
		return body.Msg
	}
}

// problemForStatus классифицирует HTTP-статус.
func problemForStatus(status int) Problem {
	switch {
	case status >= 200 && status < 300:
		return ProblemNone
	case status >= 400 && status < 500:
		return ProblemClient
	case status >= 500:
		return ProblemServer
	default:
		return ProblemUnknown
	}
}
