package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		value    string
		currency string
		want     int64
		wantErr  bool
	}{
		{"199.00", "RUB", 19900, false},
		{"199", "rub", 19900, false},
		{"0.5", "USD", 50, false},
		{"250", "XTR", 250, false},
		{"1.5", "XTR", 0, true},
		{"1.005", "RUB", 0, true},
		{"abc", "RUB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value+"/"+tt.currency, func(t *testing.T) {
			got, err := ToMinor(tt.value, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMinor(t *testing.T) {
	assert.Equal(t, "199.00", FromMinor(19900, "RUB"))
	assert.Equal(t, "0.05", FromMinor(5, "USD"))
	assert.Equal(t, "250", FromMinor(250, "XTR"))
}
