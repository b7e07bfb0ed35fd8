package optimizer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":            ModeRuleBased,
		"none":        ModeNone,
		"HEURISTIC":   ModeHeuristic,
		"rule-based":  ModeRuleBased,
		"Rule_Based":  ModeRuleBased,
		"constrained": ModeConstrained,
	}
	for s, expected := range cases {
		m, err := ParseMode(s)
		require.NoError(t, err, s)
		assert.Equal(t, expected, m, s)
	}
	_, err := ParseMode("constraned")
	assert.EqualError(t, err, `unknown optimizer mode "constraned" (did you mean "constrained"?)`)
	_, err = ParseMode("full-search-exhaustive")
	assert.EqualError(t, err, `unknown optimizer mode "full-search-exhaustive"`)
}

func TestModeText(t *testing.T) {
	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("heuristic")))
	assert.Equal(t, ModeHeuristic, m)
	b, err := ModeConstrained.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "constrained", string(b))
	assert.Error(t, m.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestNewOptimizer(t *testing.T) {
	for _, m := range []Mode{ModeHeuristic, ModeRuleBased, ModeConstrained} {
		opt, err := New(m, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, m, opt.Mode())
	}
	_, err := New(ModeNone, DefaultConfig())
	assert.Error(t, err)
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", newError(ErrRecompilation, 7, "recompile", cause))
	assert.EqualError(t, err, "wrapped: parfor(7): recompile: boom")
	assert.ErrorIs(t, err, ErrRecompilation)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrSearchExhaustion)
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, int64(7), oerr.LoopID)
}
