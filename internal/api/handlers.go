package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by all request handlers; validator instances cache
// struct metadata and are safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var fields []string
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				fields = append(fields, fe.Field())
			}
		}
		msg := "Validation failed"
		if len(fields) > 0 {
			msg += ": " + strings.Join(fields, ", ")
		}
		respondJSONError(w, msg, http.StatusBadRequest)
		return false
	}
	return true
}

// extractPathParam returns the path segment right after prefix.
func extractPathParam(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// pagination reads page/limit query parameters with the listing defaults.
func pagination(r *http.Request) (limit, offset int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit, (page - 1) * limit
}
