package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationHelper_PaymentRequest(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid request", func(t *testing.T) {
		req := PaymentRequest{
			BatchID:              "b-1",
			TransactionReference: "UTR123456",
			PaymentMode:          "neft",
			TransactionDate:      "2026-03-01",
		}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("missing fields report json names", func(t *testing.T) {
		req := PaymentRequest{PaymentMode: "barter", TransactionDate: "01/03/2026"}

		err := vh.ValidateStruct(&req)
		require.Error(t, err)

		var verrs validator.ValidationErrors
		require.True(t, errors.As(err, &verrs))

		fields := map[string]string{}
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		assert.Equal(t, "required", fields["batchId"])
		assert.Equal(t, "required", fields["transactionReference"])
		assert.Equal(t, "oneof", fields["paymentMode"])
		assert.Equal(t, "datetime", fields["transactionDate"])
	})
}

func TestValidationHelper_CustomTags(t *testing.T) {
	vh := NewValidationHelper()

	type sample struct {
		Phone  string           `json:"phone" validate:"phone"`
		Amount decimal.Decimal  `json:"amount" validate:"gt=0"`
		Extra  *decimal.Decimal `json:"extra" validate:"omitempty,gte=0"`
	}

	zero := decimal.Zero
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{"valid", sample{Phone: "+919812345678", Amount: decimal.NewFromInt(10), Extra: &zero}, ""},
		{"bad phone", sample{Phone: "12ab", Amount: decimal.NewFromInt(10)}, "phone"},
		{"zero amount", sample{Phone: "+919812345678", Amount: decimal.Zero}, "amount"},
		{"negative extra", sample{Phone: "+919812345678", Amount: decimal.NewFromInt(1), Extra: &negative}, "extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vh.ValidateStruct(&tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, ValidationDetails(err), tt.wantErr)
		})
	}
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&PaymentRequest{})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "batchId")
		assert.Contains(t, response.Details, "transactionReference")
	})

	t.Run("non validation error is not expanded", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("boom"))

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}
