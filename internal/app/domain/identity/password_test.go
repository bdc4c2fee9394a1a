package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name string
		pw   string
		want error
	}{
		{"too short", "Ab1", ErrPasswordTooShort},
		{"no uppercase", "abcdef", ErrPasswordNoUpper},
		{"no lowercase", "ABCDEF", ErrPasswordNoLower},
		{"valid", "Abcdef", nil},
		{"valid with symbols", "pa$$W0rd", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePassword(tt.pw))
		})
	}
}
