package mode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

func testConfig() Config {
	return Config{
		LowVolumeUSD:     1000,
		ThinBookUSD:      500,
		FewTraders:       5,
		MinSignals:       2,
		SustainedEnter:   time.Minute,
		RecoverVolumeUSD: 2000,
		RecoverDepthUSD:  1000,
		RecoverTraders:   10,
		SustainedRecover: 30 * time.Second,
	}
}

func lowSample(at time.Time) domain.ActivitySample {
	return domain.ActivitySample{VolumeUSD: 100, BookDepthUSD: 100, ActiveTraders: 1, At: at}
}

func healthySample(at time.Time) domain.ActivitySample {
	return domain.ActivitySample{VolumeUSD: 5000, BookDepthUSD: 3000, ActiveTraders: 20, At: at}
}

func TestMachine_SustainedLowLiquidityEntersScavenger(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMachine(testConfig(), t0)

	// Below the sustained window: never triggers.
	assert.Nil(t, m.Observe(lowSample(t0)))
	assert.Nil(t, m.Observe(lowSample(t0.Add(30*time.Second))))
	assert.Equal(t, domain.ModeNormal, m.Mode())

	// At the window boundary it does.
	tr := m.Observe(lowSample(t0.Add(time.Minute)))
	require.NotNil(t, tr)
	assert.Equal(t, domain.ModeNormal, tr.From)
	assert.Equal(t, domain.ModeScavenger, tr.To)
	assert.Equal(t, domain.ModeScavenger, m.Mode())
}

func TestMachine_InterruptedLowConditionResetsWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMachine(testConfig(), t0)

	m.Observe(lowSample(t0))
	m.Observe(healthySample(t0.Add(30 * time.Second))) // breaks the hold
	m.Observe(lowSample(t0.Add(40 * time.Second)))
	assert.Nil(t, m.Observe(lowSample(t0.Add(90*time.Second))))
	assert.Equal(t, domain.ModeNormal, m.Mode())
}

func TestMachine_SingleSignalIsNotEnough(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMachine(testConfig(), t0)

	// Only low volume: one of three signals.
	oneSignal := domain.ActivitySample{VolumeUSD: 100, BookDepthUSD: 3000, ActiveTraders: 20, At: t0}
	m.Observe(oneSignal)
	oneSignal.At = t0.Add(2 * time.Minute)
	assert.Nil(t, m.Observe(oneSignal))
	assert.Equal(t, domain.ModeNormal, m.Mode())
}

func TestMachine_SustainedRecoverySignalReturnsToNormal(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMachine(testConfig(), t0)
	m.Observe(lowSample(t0))
	require.NotNil(t, m.Observe(lowSample(t0.Add(time.Minute))))

	// Volume alone recovers; depth and traders stay low.
	rec := domain.ActivitySample{VolumeUSD: 3000, BookDepthUSD: 100, ActiveTraders: 1, At: t0.Add(2 * time.Minute)}
	assert.Nil(t, m.Observe(rec))

	rec.At = t0.Add(2*time.Minute + 30*time.Second)
	tr := m.Observe(rec)
	require.NotNil(t, tr)
	assert.Equal(t, domain.ModeNormal, tr.To)
	assert.Contains(t, tr.Reason, "volume")
}

func TestMachine_HistoryBounded(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.SustainedEnter = 0
	cfg.SustainedRecover = 0
	m := NewMachine(cfg, t0)

	at := t0
	for i := 0; i < 120; i++ {
		at = at.Add(time.Minute)
		m.Observe(lowSample(at))
		at = at.Add(time.Minute)
		m.Observe(lowSample(at))
		at = at.Add(time.Minute)
		m.Observe(healthySample(at))
		at = at.Add(time.Minute)
		m.Observe(healthySample(at))
	}

	hist := m.History()
	assert.LessOrEqual(t, len(hist), 100)
	assert.Greater(t, len(hist), 50)
}
