package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrUnavailable covers network failures and 5xx answers.
var ErrUnavailable = errors.New("backend unavailable")

// APIError is a request the backend rejected with a 4xx status.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend rejected request (%d)", e.Status)
}

func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsRejection reports whether the backend answered and said no.
func IsRejection(err error) bool {
	s := StatusOf(err)
	return s >= 400 && s < 500
}

var messageKeys = []string{"detail", "error", "message", "non_field_errors"}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		apiErr.Message = http.StatusText(status)
		return apiErr
	}

	for _, key := range messageKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if msgs := stringsOf(v); len(msgs) > 0 && apiErr.Message == "" {
			apiErr.Message = strings.Join(msgs, " ")
		}
		delete(raw, key)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msgs := stringsOf(raw[k])
		if len(msgs) == 0 {
			continue
		}
		if apiErr.Fields == nil {
			apiErr.Fields = make(map[string][]string)
		}
		apiErr.Fields[k] = msgs
	}

	if apiErr.Message == "" {
		if len(keys) > 0 && len(apiErr.Fields[keys[0]]) > 0 {
			apiErr.Message = fmt.Sprintf("%s: %s", keys[0], apiErr.Fields[keys[0]][0])
		} else {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}

func stringsOf(v json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return []string{s}
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return list
	}
	return nil
}
