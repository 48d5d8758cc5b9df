package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{
			name:   "gopls",
			output: "golang.org/x/tools/gopls v0.15.3",
			want:   "0.15.3",
		},
		{
			name:   "ruff bare number",
			output: "ruff 0.4.4",
			want:   "0.4.4",
		},
		{
			name:   "two part version",
			output: "pylsp 1.10",
			want:   "1.10.0",
		},
		{
			name:   "multiline banner",
			output: "typescript-language-server\nversion 4.3.3\n",
			want:   "4.3.3",
		},
		{
			name:    "no version at all",
			output:  "development build",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := extractVersion(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestCheckMinVersion(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		minVersion string
		ok         bool
		detail     string
	}{
		{
			name:       "satisfied",
			output:     "golang.org/x/tools/gopls v0.15.3",
			minVersion: "0.14.0",
			ok:         true,
			detail:     "version 0.15.3 (>= 0.14.0)",
		},
		{
			name:       "exactly at minimum",
			output:     "ruff 0.4.4",
			minVersion: "0.4.4",
			ok:         true,
			detail:     "version 0.4.4 (>= 0.4.4)",
		},
		{
			name:       "too old",
			output:     "gopls v0.12.0",
			minVersion: "0.14.0",
			ok:         false,
			detail:     "version 0.12.0 is below required 0.14.0",
		},
		{
			name:       "unparseable output",
			output:     "development build",
			minVersion: "1.0.0",
			ok:         false,
			detail:     `no version number in "development build"`,
		},
		{
			name:       "bad constraint",
			output:     "gopls v0.15.3",
			minVersion: "latest",
			ok:         false,
			detail:     `invalid min_version "latest"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, detail := checkMinVersion(tt.output, tt.minVersion)
			assert.Equal(t, tt.ok, ok)
			assert.Contains(t, detail, tt.detail)
		})
	}
}
