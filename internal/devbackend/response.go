package devbackend

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/console/model"
)

// errorBody is the error wire format. Clients read the message field.
type errorBody struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Details []model.FieldError `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError writes an error body whose code follows the status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: model.CodeForStatus(status), Message: message})
}

// writeValidation writes a 422 with field details.
func writeValidation(w http.ResponseWriter, err *model.ValidationError) {
	err.SortFields()
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{
		Code:    model.ErrValidationError,
		Message: "Validation failed",
		Details: err.Fields,
	})
}

func decodeBody(r *http.Request) (map[string]any, error) {
	body := map[string]any{}
	if r.Body == nil || r.ContentLength == 0 {
		return body, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}
