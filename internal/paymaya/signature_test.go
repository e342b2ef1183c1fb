package paymaya

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment.success","data":{}}`)
	good := Sign("whsec", body)

	tests := []struct {
		name      string
		secret    string
		signature string
		want      error
	}{
		{"no secret skips the check", "", "", nil},
		{"valid", "whsec", good, nil},
		{"upper-case hex", "whsec", strings.ToUpper(good), nil},
		{"missing header", "whsec", "", ErrSignatureMissing},
		{"wrong signature", "whsec", Sign("other", body), ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, body, tt.signature)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestVerifySignature_BodyTampered(t *testing.T) {
	sig := Sign("whsec", []byte(`{"amount":100}`))
	assert.ErrorIs(t, VerifySignature("whsec", []byte(`{"amount":1}`), sig), ErrSignatureMismatch)
}
