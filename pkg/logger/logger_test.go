package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmi-agro/fdm/pkg/logger"
)

type ctxKey struct{}

func farmExtractor(ctx context.Context) (slog.Attr, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	if !ok || v == "" {
		return slog.Attr{}, false
	}
	return slog.String("b_id_farm", v), true
}

func TestNew_JSONWithExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, flush := logger.New(logger.Config{Level: "debug", Format: "json"}, &buf, farmExtractor, nil)
	defer flush()

	ctx := context.WithValue(context.Background(), ctxKey{}, "farm123")
	log.DebugContext(ctx, "loaded", slog.Int("fields", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "loaded", rec["msg"])
	assert.Equal(t, "farm123", rec["b_id_farm"])
	assert.InDelta(t, 3, rec["fields"], 0)
}

func TestNew_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, _ := logger.New(logger.Config{Level: "warn", Format: "text"}, &buf)

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNew_UnknownLevelFallsBack(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, _ := logger.New(logger.Config{Level: "loud"}, &buf)
	assert.Contains(t, buf.String(), "falling back to info level")

	buf.Reset()
	log.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	lvl, err := logger.ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)

	_, err = logger.ParseLevel("nonsense")
	assert.Error(t, err)
}

func TestNewNope(t *testing.T) {
	t.Parallel()

	assert.False(t, logger.NewNope().Enabled(context.Background(), slog.LevelError))
}
