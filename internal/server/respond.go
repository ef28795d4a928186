package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to a status through its kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	log := zap.L().With(zap.String("path", r.URL.Path), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		log.Error("server: request failed", zap.Error(err))
	} else {
		log.Warn("server: request rejected", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decode reads a JSON body into dst and runs struct validation on it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Newf(apperr.KindValidation, op, "invalid request body: %v", err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperr.New(apperr.KindValidation, op, validationMessage(err))
	}
	return nil
}

// normalizer is implemented by request bodies that clean their fields before
// validation.
type normalizer interface {
	normalize()
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be an email address")
		case "oneof":
			msgs = append(msgs, field+" must be one of: "+fe.Param())
		default:
			msgs = append(msgs, field+" failed "+fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}
