package radio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesHas(t *testing.T) {
	p := PropRead | PropNotify

	assert.True(t, p.Has(PropRead))
	assert.True(t, p.Has(PropNotify))
	assert.True(t, p.Has(PropRead|PropNotify))
	assert.False(t, p.Has(PropWrite))
	assert.False(t, p.Has(PropRead|PropWrite))
}

func TestPropertiesString(t *testing.T) {
	tests := []struct {
		name     string
		props    Properties
		expected string
	}{
		{
			name:     "none",
			props:    0,
			expected: "none",
		},
		{
			name:     "single",
			props:    PropRead,
			expected: "read",
		},
		{
			name:     "multiple in flag order",
			props:    PropNotify | PropRead,
			expected: "read,notify",
		},
		{
			name:     "write variants",
			props:    PropWrite | PropWriteWithoutResponse,
			expected: "write-without-response,write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.props.String())
		})
	}
}

func TestConnectionErrorIs(t *testing.T) {
	err := &ConnectionError{State: NotConnected, Msg: "link dropped"}

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)

	wrapped := fmt.Errorf("read battery: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotConnected)
}

func TestConnectionErrorMessage(t *testing.T) {
	assert.Equal(t, "not_connected", ErrNotConnected.Error())
	assert.Equal(t, "not_connected: link dropped",
		(&ConnectionError{State: NotConnected, Msg: "link dropped"}).Error())
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected *ConnectionError
	}{
		{
			name:     "not connected",
			input:    errors.New("ble: client not connected"),
			expected: ErrNotConnected,
		},
		{
			name:     "already connected",
			input:    errors.New("device already connected"),
			expected: ErrAlreadyConnected,
		},
		{
			name:     "not initialized",
			input:    errors.New("hci: device not initialized"),
			expected: ErrNotInitialized,
		},
		{
			name:     "case insensitive",
			input:    errors.New("Not Connected"),
			expected: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
			// Upstream message survives for debugging.
			assert.Contains(t, err.Error(), tt.input.Error())
		})
	}
}

func TestNormalizeErrorPassthrough(t *testing.T) {
	assert.NoError(t, NormalizeError(nil))

	unknown := errors.New("att timeout")
	assert.Equal(t, unknown, NormalizeError(unknown))
}

