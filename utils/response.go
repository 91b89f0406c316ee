package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"gigpay-bend/models"
)

// Response represents a generic response
type Response struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PendingMessage is shown when the gateway outcome is not known yet
const PendingMessage = "payment pending, will update automatically"

// RespondWithError sends an error response
func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, Response{
		Status: "error",
		Code:   code,
		Error:  msg,
	})
}

// RespondWithAppError maps an engine error to its HTTP status. Unknown
// errors are reported as a generic 500.
func RespondWithAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSecurity):
		RespondWithError(w, http.StatusUnauthorized, "request could not be authenticated")
	case errors.Is(err, models.ErrValidation):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidState):
		RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrGateway):
		RespondWithJSON(w, http.StatusAccepted, Response{
			Status:  "pending",
			Code:    http.StatusAccepted,
			Message: PendingMessage,
		})
	default:
		RespondWithError(w, http.StatusInternalServerError, "Error processing request")
	}
}

// RespondWithOk response
func RespondWithOk(w http.ResponseWriter, msg string) {
	RespondWithJSON(w, http.StatusOK, Response{
		Status:  "success",
		Code:    http.StatusOK,
		Message: msg,
	})
}

// RespondWithData sends a success response carrying data
func RespondWithData(w http.ResponseWriter, code int, msg string, data interface{}) {
	RespondWithJSON(w, code, Response{
		Status:  "success",
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

// RespondWithJSON ... This
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
