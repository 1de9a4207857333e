package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/izposoja/internal/lending"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into target and validates its
// struct tags. An empty body decodes as an empty object.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(target)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// statusFor maps a lending error family to an HTTP status.
func statusFor(err error) int {
	switch lending.Family(err) {
	case lending.ErrNotFound:
		return http.StatusNotFound
	case lending.ErrConflict:
		return http.StatusConflict
	case lending.ErrBadRequest:
		return http.StatusBadRequest
	case lending.ErrInvalidState, lending.ErrRenewalLimitExceeded, lending.ErrOverpaymentRejected:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// lendingError writes err as a JSON error. Rule violations carry their
// message and a machine-readable code; anything else is logged and hidden.
func lendingError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, status, "internal error")
		return
	}
	jsonResponse(w, status, map[string]string{"error": err.Error(), "code": lending.Label(err)})
}
