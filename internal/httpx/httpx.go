package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	// ReturnTo is an escape link for blocking failures.
	ReturnTo string `json:"return_to,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

var validate = validator.New()

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	WriteAPIError(w, status, APIError{Message: msg, Code: code})
}

func WriteAPIError(w http.ResponseWriter, status int, apiErr APIError) {
	WriteJSON(w, status, ErrorEnvelope{Error: apiErr})
}

// DecodeJSON reads a JSON body into v and runs struct validation on it.
// An empty body decodes as an empty object.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.Wrap(err, "invalid request body")
	}
	return validate.Struct(v)
}

// WriteDecodeError answers a DecodeJSON failure with 400, listing field errors when present.
func WriteDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		WriteAPIError(w, http.StatusBadRequest, APIError{
			Message: "validation failed",
			Code:    "invalid_request",
			Fields:  fields,
		})
		return
	}
	WriteError(w, http.StatusBadRequest, "invalid_request", err)
}
