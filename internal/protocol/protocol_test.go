package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigitalWriteFrame(t *testing.T) {
	tests := []struct {
		name string
		cmd  DigitalWrite
		want []byte
	}{
		{"motor on", DigitalWrite{Port: 9, Value: 1}, []byte{0x57, 0x64, 0x09, 0x01}},
		{"motor off", DigitalWrite{Port: 9, Value: 0}, []byte{0x57, 0x64, 0x09, 0x00}},
		{"port zero", DigitalWrite{Port: 0, Value: 1}, []byte{0x57, 0x64, 0x00, 0x01}},
		{"port max", DigitalWrite{Port: 99, Value: 0}, []byte{0x57, 0x64, 0x63, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigitalWritePortRange(t *testing.T) {
	for _, port := range []int{-1, 100, 255} {
		_, err := DigitalWrite{Port: port, Value: 1}.Encode()
		require.Error(t, err, "port %d must be rejected", port)
		assert.True(t, errors.Is(err, ErrPortRange))
	}

	// Rejected before encoding regardless of value.
	_, err := DigitalWrite{Port: 100, Value: 0}.Encode()
	assert.True(t, errors.Is(err, ErrPortRange))
}

func TestDigitalWriteValueRange(t *testing.T) {
	_, err := DigitalWrite{Port: 9, Value: 2}.Encode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValueRange))
}

func TestSkillFrame(t *testing.T) {
	got, err := Skill{Code: "khi"}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("khi\n"), got)
}

func TestRawFrame(t *testing.T) {
	got, err := Raw{Text: "m 8 60"}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("m 8 60\n"), got)
}

func TestMotorShortcuts(t *testing.T) {
	on, err := MotorOn().Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x57, 0x64, 0x09, 0x01}, on)

	off, err := MotorOff().Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x57, 0x64, 0x09, 0x00}, off)
}
