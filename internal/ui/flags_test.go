package ui

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-gateway/internal/tree"
)

func TestParseDepthFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantErr bool
	}{
		{name: "default is unbounded", want: tree.Unbounded},
		{name: "direct children", args: []string{"--depth", "0"}, want: 0},
		{name: "explicit", args: []string{"--depth=3"}, want: 3},
		{name: "too small", args: []string{"--depth", "-2"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "x"}
			AddDepthFlag(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			got, err := ParseDepthFlag(cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
