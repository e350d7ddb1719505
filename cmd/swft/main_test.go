package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/swft/internal/central"
	"github.com/srg/swft/internal/device"
	"github.com/srg/swft/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs args against a throwaway root holding cmds and
// returns stdout and stderr separately
func executeCommand(args []string, cmds ...*cobra.Command) (string, string, error) {
	root := &cobra.Command{Use: "swft", SilenceErrors: true}
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	for _, c := range cmds {
		root.AddCommand(c)
	}

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "bluetooth off", err: fmt.Errorf("failed to power on central: %w", device.ErrBluetoothOff), want: "Bluetooth is turned off. Turn it on and try again."},
		{name: "unsupported", err: device.ErrUnsupported, want: "Bluetooth is not supported on this platform."},
		{name: "not powered on", err: central.ErrNotPoweredOn, want: "Bluetooth adapter is not ready. Check that Bluetooth is on and this program is allowed to use it."},
		{name: "other", err: errors.New("something broke"), want: "something broke"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		want    logrus.Level
		wantErr bool
	}{
		{name: "silent by default", want: logrus.PanicLevel},
		{name: "flag", flag: "debug", want: logrus.DebugLevel},
		{name: "environment", env: "warn", want: logrus.WarnLevel},
		{name: "flag wins over environment", flag: "error", env: "debug", want: logrus.ErrorLevel},
		{name: "invalid flag", flag: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			t.Setenv("SWFT_LOG_LEVEL", tt.env)
			if tt.env != "" {
				level, err := logrus.ParseLevel(tt.env)
				require.NoError(t, err)
				cfg.LogLevel = level
			}

			cmd := &cobra.Command{}
			cmd.Flags().String("log-level", "", "")
			if tt.flag != "" {
				require.NoError(t, cmd.Flags().Set("log-level", tt.flag))
			}

			logger, err := configureLogger(cmd, cfg)

			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid log level: loud")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
