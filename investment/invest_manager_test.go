package investment

import (
	"io"
	"os"
	"testing"

	"index_risk_sentinel/logs"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logs.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestManagerTransitions(t *testing.T) {
	m := NewManager(2)
	assert.Equal(t, 2, m.Limit())

	assert.False(t, m.Update(1))
	assert.True(t, m.Update(2))
	assert.True(t, m.IsTradingHalted())
	assert.Equal(t, 2, m.OpenCount())

	assert.False(t, m.Update(1), "dropping below the limit lifts the halt")
	assert.False(t, m.IsTradingHalted())
	assert.Equal(t, 1, m.OpenCount())
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(0)
	assert.False(t, m.Update(50))
	assert.False(t, m.IsTradingHalted())
	assert.Equal(t, 50, m.OpenCount())
}
