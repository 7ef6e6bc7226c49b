// Package response builds the {statusCode, body} documents XC3 functions
// return to their callers.
package response

import (
	"encoding/json"
	"net/http"
)

// Response is returned by functions that are invoked directly or by
// another function.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

// CORS headers let the dashboard call functions behind API Gateway.
var CORS = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "*",
	"Access-Control-Allow-Headers": "*",
}

// OK returns a 200 response with v encoded as JSON, or v itself when it
// is already a string.
func OK(v interface{}) Response {
	return New(http.StatusOK, v)
}

// New returns a response with the given status.
func New(status int, v interface{}) Response {
	if s, ok := v.(string); ok {
		return Response{StatusCode: status, Body: s}
	}
	body, err := json.Marshal(v)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}
	return Response{StatusCode: status, Body: string(body)}
}

// Error returns a 500 response carrying the error message.
func Error(err error) Response {
	return New(http.StatusInternalServerError, map[string]string{"Error": err.Error()})
}
