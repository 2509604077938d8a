package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/model"
)

func writeError(w http.ResponseWriter, httpStatus int, err error) {
	logrus.Errorf("got a response error: %v", err)
	o := model.ErrorResponse{
		Status:  httpStatus,
		Message: err.Error(),
	}
	var validation model.ValidationErrors
	if errors.As(err, &validation) {
		o.Fields = validation
	}
	res, _ := json.Marshal(o)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = w.Write(res)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	res, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
}

// handleError maps the store's failure kinds onto HTTP statuses.
func handleError(w http.ResponseWriter, err error) {
	var (
		validation model.ValidationErrors
		constraint model.ConstraintViolation
		immutable  model.ImmutableField
		referenced model.ReferencedInUse
		notFound   model.NotFound
		malformed  model.MalformedInput
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &immutable):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.As(err, &constraint), errors.As(err, &referenced):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &malformed):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, backend.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
