package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		want    zerolog.Level
		wantErr bool
	}{
		{name: "default is info", config: Config{}, want: zerolog.InfoLevel},
		{name: "explicit level", config: Config{Level: "warn"}, want: zerolog.WarnLevel},
		{name: "debug wins over level", config: Config{Level: "error", Debug: true}, want: zerolog.DebugLevel},
		{name: "console output", config: Config{Console: true, Output: "stderr"}, want: zerolog.InfoLevel},
		{name: "unknown level", config: Config{Level: "loud"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Init(tc.config)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, GetLogger().GetLevel())
		})
	}
}

func TestWithComponent(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info"}))
	assert.NotEqual(t, zerolog.Disabled, WithComponent("engine").GetLevel())
}
