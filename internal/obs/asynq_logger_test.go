package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var _ asynq.Logger = AsynqLogger{}

func TestAsynqLoggerWritesLevels(t *testing.T) {
	var buf bytes.Buffer
	l := AsynqLogger{Logger: zerolog.New(&buf)}
	l.Warn("queue ", "submissions", " paused")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "queue submissions paused", entry["message"])
}
