package guard

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// CodeForbidden is the error code carried by every REST denial
const CodeForbidden = "rest_forbidden"

// Denial is the only semantic error the guard produces.
// It is the terminal result of a REST evaluation: integration layers return
// it to the caller as the response and stop processing the request.
type Denial struct {
	Code    string
	Message string
	Status  int
}

// Error implements error
func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", d.Code, d.Message, d.Status)
}

type denialData struct {
	Status int `json:"status"`
}

type denialPayload struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Data    denialData `json:"data"`
}

// MarshalJSON renders the denial in the REST error envelope hosts emit:
//
//	{"code":"rest_forbidden","message":"authorization required","data":{"status":401}}
func (d *Denial) MarshalJSON() ([]byte, error) {
	return json.Marshal(denialPayload{
		Code:    d.Code,
		Message: d.Message,
		Data:    denialData{Status: d.Status},
	})
}

// Body returns the JSON body for the denial response
func (d *Denial) Body() []byte {
	b, err := d.MarshalJSON()
	if err != nil {
		// Only strings and an int are marshaled; this cannot fail.
		return []byte(`{"code":"` + CodeForbidden + `"}`)
	}
	return b
}

// WriteHTTP writes the denial as a JSON response
func (d *Denial) WriteHTTP(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(d.Status)
	_, _ = w.Write(d.Body())
}

func newForbidden(message string) *Denial {
	return &Denial{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Decision is the result of a REST evaluation
type Decision struct {
	// Allowed is true when the request may proceed unchanged
	Allowed bool

	// Denial is set when Allowed is false
	Denial *Denial
}

// Allow returns a pass-through decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a blocking decision
func Deny(d *Denial) Decision {
	return Decision{Denial: d}
}

// Denied returns the denial, or nil when allowed.
// A zero Decision is treated as a denial.
func (d Decision) Denied() *Denial {
	if d.Allowed {
		return nil
	}
	if d.Denial == nil {
		return newForbidden(DefaultRESTErrorText)
	}
	return d.Denial
}

// Err returns the denial as an error, or nil when allowed
func (d Decision) Err() error {
	if denial := d.Denied(); denial != nil {
		return denial
	}
	return nil
}
