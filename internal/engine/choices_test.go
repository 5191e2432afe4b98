package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/tildeath/internal/config"
	"github.com/tatianab/tildeath/internal/models"
)

func newResolver(seed uint64, mutate func(*config.SessionTuning)) *Resolver {
	cfg := config.DefaultTuning().Session
	if mutate != nil {
		mutate(&cfg)
	}
	return NewResolver(cfg, rand.New(rand.NewPCG(seed, 0)))
}

func TestResolveSafeChoice(t *testing.T) {
	r := newResolver(1, nil)
	state := models.NewSessionState(3)

	res := r.Resolve(state, "Wait quietly")
	assert.Equal(t, 1, state.TurnCount)
	assert.Equal(t, DangerNone, res.Danger)
	assert.Zero(t, res.Damage)
	assert.Empty(t, res.Feedback)
	assert.Equal(t, models.DefaultStats(), state.Stats)
}

func TestResolveDangerLevels(t *testing.T) {
	tests := []struct {
		choice string
		want   string
	}{
		{"Fight the thing in the hall", DangerExtreme},
		{"Open the cabinet", DangerHigh},
		{"Explore the basement", DangerMedium},
		{"Listen at the wall", DangerLow},
		{"Sit down", DangerNone},
	}
	for _, tt := range tests {
		t.Run(tt.choice, func(t *testing.T) {
			r := newResolver(2, nil)
			state := models.NewSessionState(3)
			state.TurnCount = 12
			res := r.Resolve(state, tt.choice)
			assert.Equal(t, tt.want, res.Danger)
			assert.Equal(t, 100-res.Damage, state.Stat(models.StatHealth))
			assert.Equal(t, res.Damage, state.LastDamage)
			if tt.want != DangerNone {
				assert.Positive(t, res.Damage)
				assert.NotEmpty(t, res.Feedback)
			}
		})
	}
}

func TestResolveEarlyTurnsAreGentler(t *testing.T) {
	early, late := newResolver(3, nil), newResolver(3, nil)
	a, b := models.NewSessionState(3), models.NewSessionState(3)
	b.TurnCount = 9 // past the early window, before the late multipliers

	ra := early.Resolve(a, "Attack it")
	rb := late.Resolve(b, "Attack it")
	// Same seed, same draw: early damage is half of the full amount.
	assert.Equal(t, int(float64(rb.Damage)*0.5), ra.Damage)
	assert.GreaterOrEqual(t, rb.Damage, 20)
	assert.LessOrEqual(t, rb.Damage, 30)
}

func TestResolveTrap(t *testing.T) {
	r := newResolver(4, nil)
	state := models.NewSessionState(3)
	state.TurnCount = 9

	res := r.Resolve(state, "Drink the strange liquid anyway")
	assert.True(t, res.Trap)
	assert.GreaterOrEqual(t, res.Damage, 25)
	assert.Contains(t, state.EventFlags, models.FlagTrapTriggered)
	assert.Less(t, state.Stat(models.StatSanity), 10)
}

func TestIsTrap(t *testing.T) {
	assert.True(t, isTrap("Eat the mushroom (it's poison)"))
	assert.True(t, isTrap("Go in despite everything"))
	assert.False(t, isTrap("Eat bread (it smells fine)"))
	assert.False(t, isTrap("Leave (quietly"))
	assert.False(t, isTrap("Close the door"))
}

func TestResolveInstantDeath(t *testing.T) {
	r := newResolver(5, func(c *config.SessionTuning) { c.InstantDeathChance = 1 })
	state := models.NewSessionState(3)

	res := r.Resolve(state, "Jump in, it's clearly dangerous")
	require.Equal(t, DangerInstant, res.Danger)
	assert.True(t, state.InstantDeath)
	assert.Equal(t, models.DeathCauseInstant, state.DeathCause)
	assert.Zero(t, state.Stat(models.StatHealth))
	assert.Equal(t, 100, res.Damage)
}

func TestResolveClampsStats(t *testing.T) {
	r := newResolver(6, nil)
	state := models.NewSessionState(3)
	state.TurnCount = 25
	state.Stats[models.StatHealth] = 5
	state.Stats[models.StatCourage] = 10

	res := r.Resolve(state, "Charge and attack")
	assert.Equal(t, 5, res.Damage)
	assert.Zero(t, state.Stat(models.StatHealth))
	assert.Equal(t, 10, state.Stat(models.StatCourage))
	assert.Empty(t, state.Normalize())
}
