package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedAdapter(level logrus.Level) (Logger, *bytes.Buffer) {
	logrusLogger := logrus.New()
	var buf bytes.Buffer
	logrusLogger.SetOutput(&buf)
	logrusLogger.SetLevel(level)
	logrusLogger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return NewLogrusAdapterFromLogger(logrusLogger), &buf
}

func TestNewLogrusAdapter(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		expectLevel logrus.Level
	}{
		{name: "debug level with text format", level: "debug", format: "text", expectLevel: logrus.DebugLevel},
		{name: "info level with json format", level: "info", format: "json", expectLevel: logrus.InfoLevel},
		{name: "upper case level", level: "WARN", format: "text", expectLevel: logrus.WarnLevel},
		{name: "warning spelling with spaces", level: " warning ", format: "Json", expectLevel: logrus.WarnLevel},
		{name: "invalid level defaults to info", level: "loud", format: "text", expectLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogrusAdapter(tt.level, tt.format)
			require.NotNil(t, logger)

			adapter, ok := logger.(*LogrusAdapter)
			require.True(t, ok, "logger should be a LogrusAdapter")
			assert.Equal(t, tt.expectLevel, adapter.logger.Level)

			if strings.EqualFold(tt.format, "json") {
				_, ok := adapter.logger.Formatter.(*logrus.JSONFormatter)
				assert.True(t, ok, "formatter should be JSONFormatter")
			} else {
				_, ok := adapter.logger.Formatter.(*logrus.TextFormatter)
				assert.True(t, ok, "formatter should be TextFormatter")
			}
		})
	}
}

func TestNewLogrusAdapterFromLogger_Nil(t *testing.T) {
	logger := NewLogrusAdapterFromLogger(nil)
	adapter, ok := logger.(*LogrusAdapter)
	require.True(t, ok)
	assert.NotNil(t, adapter.logger)
}

func TestLogrusAdapter_FieldsAndErrors(t *testing.T) {
	logger, buf := newBufferedAdapter(logrus.DebugLevel)

	logger.
		WithField(FieldOrderID, "ord-1").
		WithFields(F(FieldTxnID, "CO260125.1226.T9190887"), F(FieldAmount, "10.00")).
		WithError(errors.New("balance mismatch")).
		Warn("cash-out flagged")

	output := buf.String()
	assert.Contains(t, output, "cash-out flagged")
	assert.Contains(t, output, "ord-1")
	assert.Contains(t, output, "CO260125.1226.T9190887")
	assert.Contains(t, output, "balance mismatch")
}

func TestLogrusAdapter_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedAdapter(logrus.WarnLevel)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Error("visible error")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "visible error")
}

func TestConvertFields(t *testing.T) {
	logrusFields := convertFields([]Field{F(FieldOrderID, "ord-1"), F(FieldCount, 42), F("", "dropped"), F(FieldOrderID, "ord-2")})

	assert.Len(t, logrusFields, 2)
	assert.Equal(t, "ord-2", logrusFields[FieldOrderID])
	assert.Equal(t, 42, logrusFields[FieldCount])
	assert.Len(t, convertFields(nil), 0)
}

func TestLogrusAdapter_JSONUsesFieldNames(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLogger("debug", "JSON")
	logger.SetOutput(&buf)
	adapter := NewLogrusAdapterFromLogger(logger)

	adapter.WithFields(F(FieldSender, "+263164")).
		WithError(errors.New("unexpected end of JSON input")).
		Warn("Malformed provider webhook payload", F(FieldKind, "malformed"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "Malformed provider webhook payload", line["msg"])
	assert.Equal(t, "+263164", line[FieldSender])
	assert.Equal(t, "malformed", line[FieldKind])
	assert.Equal(t, "unexpected end of JSON input", line[FieldError])
}

func TestLogrusAdapter_WithNilError(t *testing.T) {
	logger, buf := newBufferedAdapter(logrus.InfoLevel)

	assert.Same(t, logger, logger.WithError(nil))
	logger.WithError(nil).Info("order created")
	assert.NotContains(t, buf.String(), FieldError+"=")
}

func TestDefaultLogger(t *testing.T) {
	original := GetLogger()
	defer SetDefault(original)

	mock := NewMockLogger()
	SetDefault(mock)
	assert.Same(t, mock, GetLogger())

	SetDefault(nil)
	assert.Same(t, mock, GetLogger(), "nil must not replace the default")
	assert.Same(t, mock, OrDefault(nil))
}

func TestMockLogger_DerivedLoggersShareEntries(t *testing.T) {
	mock := NewMockLogger()

	mock.WithField(FieldSender, "+263164").WithError(errors.New("boom")).Error("parse failed")
	mock.Info("received")

	entries := mock.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "ERROR", entries[0].Level)
	assert.EqualError(t, entries[0].Error, "boom")
	assert.Equal(t, []Field{F(FieldSender, "+263164")}, entries[0].Fields)
	assert.True(t, mock.HasEntry("INFO", "received"))
	assert.Len(t, mock.GetEntriesByLevel("ERROR"), 1)
}

func TestAdaptersImplementInterface(t *testing.T) {
	var _ Logger = (*LogrusAdapter)(nil)
	var _ Logger = (*MockLogger)(nil)
}
