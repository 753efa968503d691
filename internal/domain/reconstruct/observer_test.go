package reconstruct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"chemdash/pkg/logger"
)

func TestLogObserver_WarnsOnCoercedQuantities(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := NewLogObserver(logger.FromZap(zap.New(core)))

	o.Reconstructed(context.Background(), "ACETONE@CHENNAI", march, Quality{
		InvalidQuantity:    2,
		InvalidQuantityIDs: []string{"d2", "d1"},
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "quantities coerced to zero", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "reconstruct", fields["component"])
	assert.Equal(t, "ACETONE@CHENNAI", fields["scope"])
	assert.Equal(t, "2026-03", fields["month"])
	assert.EqualValues(t, 2, fields["count"])
}

func TestLogObserver_LogsEachIDSetOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := NewLogObserver(logger.FromZap(zap.New(core)))
	ctx := context.Background()

	o.Reconstructed(ctx, "ACETONE@CHENNAI", march, Quality{InvalidQuantity: 2, InvalidQuantityIDs: []string{"d1", "d2"}})
	o.Reconstructed(ctx, "CHENNAI", march, Quality{InvalidQuantity: 2, InvalidQuantityIDs: []string{"d2", "d1"}})
	o.Reconstructed(ctx, "ACETONE@CHENNAI", october, Quality{InvalidQuantity: 2, InvalidQuantityIDs: []string{"d1", "d2"}})
	assert.Equal(t, 1, logs.Len())

	o.Reconstructed(ctx, "ACETONE@CHENNAI", march, Quality{InvalidQuantity: 3, InvalidQuantityIDs: []string{"d1", "d2", "d3"}})
	assert.Equal(t, 2, logs.Len())
}

func TestLogObserver_QuietWithoutCoercion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := NewLogObserver(logger.FromZap(zap.New(core)))

	o.Reconstructed(context.Background(), "CHENNAI", march, Quality{EpochTimestamp: 1})
	assert.Zero(t, logs.Len())
}

func TestObservers_FanOut(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := Observers{nil, NewLogObserver(logger.FromZap(zap.New(core)))}

	o.Reconstructed(context.Background(), "CHENNAI", march, Quality{InvalidQuantity: 1, InvalidQuantityIDs: []string{"x"}})
	assert.Equal(t, 1, logs.Len())
}
