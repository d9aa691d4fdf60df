package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a", want: []string{"a"}},
		{in: " a , b,,c ", want: []string{"a", "b", "c"}},
		{in: ",,", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.in))
		})
	}
}

func TestDriveConfiguration(t *testing.T) {
	cfg := DriveConfiguration{Drives: []string{"d1", "d2"}}
	assert.True(t, cfg.AllowsDrive("d2"))
	assert.False(t, cfg.AllowsDrive("d3"))
	assert.False(t, cfg.AllowsDrive(""))
	assert.Equal(t, "d1", cfg.PrimaryDrive())
	assert.Equal(t, "", DriveConfiguration{}.PrimaryDrive())
}
