package backend

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ticket-storefront/internal/status"
)

// CodeSuccess is the only respCode the backend uses for success.
const CodeSuccess = 2000

// Envelope wraps every backend response body.
type Envelope struct {
	RespCode int             `json:"respCode"`
	RespDesc string          `json:"respDesc"`
	Result   json.RawMessage `json:"result"`
}

// APIError is an application-level rejection: the HTTP exchange succeeded
// but respCode was not CodeSuccess.
type APIError struct {
	Endpoint string
	Code     int
	Desc     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: respCode %d: %s", e.Endpoint, e.Code, e.Desc)
}

// HTTPError is a non-2xx status other than 401.
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.Status, e.Body)
}

// decode turns a raw exchange into either out or one of the error kinds.
func decode(endpoint string, code int, body []byte, out any) error {
	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", endpoint, status.ErrUnauthorized)
	case code < 200 || code >= 300:
		return &HTTPError{Endpoint: endpoint, Status: code, Body: snippet(body)}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", endpoint, err)
	}
	if env.RespCode != CodeSuccess {
		return &APIError{Endpoint: endpoint, Code: env.RespCode, Desc: env.RespDesc}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", endpoint, err)
	}
	return nil
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
