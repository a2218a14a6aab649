package amocrm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fixableCodes are validation codes caused by a value of the wrong type.
var fixableCodes = map[string]bool{
	"InvalidType":       true,
	"BadValue":          true,
	"InvalidValueList":  true,
	"JsonInvalidValue":  true,
	"InvalidDateFormat": true,
}

// ValidationError is one entry of the validation-errors collection returned
// for a rejected write.
type ValidationError struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Path      string `json:"path"`
	Detail    string `json:"detail"`
}

// Fixable reports whether coercing field values may resolve the error.
func (e ValidationError) Fixable() bool {
	return fixableCodes[e.Code]
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Code
	}
	return e.Code + " at " + e.Path
}

// ParseValidationErrors extracts the validation errors of a rejected write.
// Entries are either grouped per request ({request_id, errors: [...]}) or
// flat ({code, path, detail}); both are flattened.
func ParseValidationErrors(body []byte) []ValidationError {
	var envelope struct {
		Errors []struct {
			ValidationError
			Errors []ValidationError `json:"errors"`
		} `json:"validation-errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	var out []ValidationError
	for _, group := range envelope.Errors {
		if group.Code != "" {
			out = append(out, group.ValidationError)
		}
		for _, e := range group.Errors {
			if e.RequestID == "" {
				e.RequestID = group.RequestID
			}
			out = append(out, e)
		}
	}
	return out
}

func anyFixable(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Fixable() {
			return true
		}
	}
	return false
}

// WriteRejectedError is returned when a create request is refused and could
// not be corrected.
type WriteRejectedError struct {
	Kind     EntityKind
	Attempts int
	// Validation holds the validation errors of the last rejection.
	Validation []ValidationError
	// Cause is the error of the last write attempt.
	Cause error
	// MetadataErr is set when field metadata could not be fetched for
	// correction.
	MetadataErr error
}

func (e *WriteRejectedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "create %s rejected after %d attempt(s)", e.Kind, e.Attempts)
	if len(e.Validation) > 0 {
		codes := make([]string, len(e.Validation))
		for i, v := range e.Validation {
			codes[i] = v.String()
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(codes, "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if e.MetadataErr != nil {
		fmt.Fprintf(&b, " (field metadata unavailable: %v)", e.MetadataErr)
	}
	return b.String()
}

func (e *WriteRejectedError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.MetadataErr != nil {
		errs = append(errs, e.MetadataErr)
	}
	return errs
}
