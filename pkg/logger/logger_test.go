package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	require.NotNil(t, entry)
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLoggerPropagatesFields(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithField("claim_id", "CLM-AB12CD34EF")
	ctx := WithLogger(context.Background(), entry)

	got := G(ctx)
	assert.Equal(t, "CLM-AB12CD34EF", got.Data["claim_id"])
}

func TestJSONFormatFieldNames(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	setLoggerFormat(l, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	G(ctx).Info("mail ingested")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "mail ingested", line["message"])
	assert.Equal(t, "info", line["logLevel"])

	ts, ok := line["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	require.NoError(t, SetLogLevel("info"))
	assert.Error(t, SetLogLevel("loud"))
}
