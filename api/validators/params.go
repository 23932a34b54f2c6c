package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/comanda-backend/pkg/errors"
)

// maxListValues caps comma separated query filters.
const maxListValues = 16

// IntRange bounds an optional integer query parameter.
type IntRange struct {
	Default int
	Min     int
	Max     int
}

// ParseUUIDParam reads a required uuid path parameter.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, fieldError(key, "path parameter is required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(key, "path parameter must be a uuid", err)
	}
	return id, nil
}

// ParseQueryInt returns bounds.Default when key is absent.
func ParseQueryInt(r *http.Request, key string, bounds IntRange) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return bounds.Default, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, "query parameter must be numeric", err)
	}
	if value < bounds.Min || value > bounds.Max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": bounds.Min, "max": bounds.Max})
	}
	return value, nil
}

// ParseQueryList splits a comma separated filter such as ?status=ready,preparing.
// Blank entries and duplicates are dropped; order of first appearance is kept.
func ParseQueryList(r *http.Request, key string) ([]string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		values = append(values, part)
	}
	if len(values) > maxListValues {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many filter values").
			WithDetails(map[string]any{"field": key, "max": maxListValues})
	}
	return values, nil
}

func fieldError(key, message string, cause error) error {
	details := map[string]any{"field": key}
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, message).WithDetails(details)
}
