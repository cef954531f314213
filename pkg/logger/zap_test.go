package logger

import (
	"context"
	"testing"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Logger
		wantErr string
	}{
		{name: "console default", cfg: config.Logger{}},
		{name: "json debug", cfg: config.Logger{Level: "debug", Format: "json"}},
		{name: "bad level", cfg: config.Logger{Level: "loud"}, wantErr: "invalid log level"},
		{name: "bad format", cfg: config.Logger{Level: "info", Format: "xml"}, wantErr: "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewZapLogger(tt.cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.Nil(t, l)
				return
			}
			require.NoError(t, err)
			l.With("k", "v").Debug("hello")
		})
	}
}

func TestLoggerContext(t *testing.T) {
	l, err := NewZapLogger(config.Logger{Level: "error"})
	require.NoError(t, err)

	ctx := WithLogger(context.Background(), l)
	require.Same(t, l, FromContext(ctx))
	require.NotNil(t, FromContext(context.Background()))
}
