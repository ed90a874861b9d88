package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/medora/medora/pkg/apierr"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ParseUUIDParam extracts a UUID path parameter. A malformed value is a
// validation error, reported before any storage access.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := mux.Vars(r)[key]
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing path parameter %s", apierr.ErrValidation, key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", apierr.ErrValidation, key)
	}
	return id, nil
}

// ParsePathString extracts a non-empty string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("%w: missing path parameter %s", apierr.ErrValidation, key)
	}
	return str, nil
}

// ParsePage reads page and limit query parameters. Page numbers start at 1.
func ParsePage(r *http.Request) (page, limit int, err error) {
	page, err = parsePositiveQuery(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err = parsePositiveQuery(r, "limit", DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit, nil
}

func parsePositiveQuery(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil || val < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", apierr.ErrValidation, key)
	}
	return val, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// DecodeAndValidate decodes a JSON body into dest and runs its `validate`
// struct tags. Both failures are validation errors.
func DecodeAndValidate(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", apierr.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON: %v", apierr.ErrValidation, err)
	}
	if err := validate.Struct(dest); err != nil {
		return fmt.Errorf("%w: %s", apierr.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
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
			msgs = append(msgs, field+" must be a valid email")
		case "uuid", "uuid4":
			msgs = append(msgs, field+" must be a valid UUID")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
