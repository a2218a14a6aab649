package amocrm

import (
	"errors"
	"testing"

	httpclient "github.com/natserract/amocrm/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCodes   []string
		wantFixable bool
	}{
		{
			name: "grouped per request",
			body: `{"validation-errors":[{"request_id":"0","errors":[
				{"code":"InvalidType","path":"custom_fields_values.0.values.0.value","detail":"This value should be of type int."}]}],
				"title":"Bad Request","status":400}`,
			wantCodes:   []string{"InvalidType"},
			wantFixable: true,
		},
		{
			name:        "flat entries",
			body:        `{"validation-errors":[{"code":"NotSupportedChoice","path":"custom_fields_values.0.field_id"}]}`,
			wantCodes:   []string{"NotSupportedChoice"},
			wantFixable: false,
		},
		{
			name: "mixed codes",
			body: `{"validation-errors":[{"request_id":"0","errors":[
				{"code":"FieldMissing","path":"name"},{"code":"InvalidDateFormat","path":"custom_fields_values.1"}]}]}`,
			wantCodes:   []string{"FieldMissing", "InvalidDateFormat"},
			wantFixable: true,
		},
		{
			name:      "no validation errors",
			body:      `{"title":"Unauthorized","status":401}`,
			wantCodes: nil,
		},
		{
			name:      "not json",
			body:      `<html>bad gateway</html>`,
			wantCodes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ParseValidationErrors([]byte(tt.body))

			var codes []string
			for _, e := range errs {
				codes = append(codes, e.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
			assert.Equal(t, tt.wantFixable, anyFixable(errs))
		})
	}
}

func TestWriteRejectedErrorUnwrap(t *testing.T) {
	cause := &httpclient.HTTPError{StatusCode: 400}
	err := &WriteRejectedError{
		Kind:        KindContacts,
		Attempts:    1,
		Validation:  []ValidationError{{Code: "InvalidType", Path: "custom_fields_values.0"}},
		Cause:       cause,
		MetadataErr: httpclient.ErrReauthRequired,
	}

	var httpErr *httpclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 400, httpErr.StatusCode)
	assert.True(t, errors.Is(err, httpclient.ErrReauthRequired))
	assert.Contains(t, err.Error(), "InvalidType at custom_fields_values.0")
}
