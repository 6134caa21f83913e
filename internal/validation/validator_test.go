package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-server/internal/errors"
	"github.com/openshelf/openshelf-server/internal/validation"
)

type testRequest struct {
	IdentifierType  string  `json:"identifier_type" validate:"required"`
	IdentifierValue string  `json:"identifier_value" validate:"required"`
	URL             string  `json:"url" validate:"omitempty,url"`
	Strength        float64 `json:"strength" validate:"gte=-1,lte=1"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	req := testRequest{
		IdentifierType:  "uri",
		IdentifierValue: "https://gutenberg.org/ebooks/2701",
		URL:             "https://gutenberg.org/files/2701/2701.epub",
		Strength:        0.8,
	}

	assert.NoError(t, v.Validate(req))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name       string
		req        testRequest
		wantErrMsg string
	}{
		{
			name: "missing required field",
			req: testRequest{
				IdentifierType: "uri",
				Strength:       0.5,
			},
			wantErrMsg: "identifier_value",
		},
		{
			name: "invalid url",
			req: testRequest{
				IdentifierType:  "uri",
				IdentifierValue: "urn:x",
				URL:             "not a url",
			},
			wantErrMsg: "url",
		},
		{
			name: "strength out of range",
			req: testRequest{
				IdentifierType:  "uri",
				IdentifierValue: "urn:x",
				Strength:        2,
			},
			wantErrMsg: "strength",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
			assert.Contains(t, err.Error(), tt.wantErrMsg)
		})
	}
}
