package strategy

import (
	"testing"

	"index_risk_sentinel/config"

	"github.com/stretchr/testify/assert"
)

func TestTableDefaults(t *testing.T) {
	table := NewTable(config.NewConfig().Risk)

	ic, ok := table.Lookup("iron_condor")
	assert.True(t, ok)
	assert.Equal(t, Limit{StopLossPerLot: 1500, TargetPerLot: 3000}, ic)
	assert.Equal(t, 3000.0, ic.MaxLoss(2))
	assert.Equal(t, 6000.0, ic.Target(2))

	unknown, ok := table.Lookup("COVERED_CALL")
	assert.False(t, ok)
	assert.Equal(t, Limit{StopLossPerLot: 2000, TargetPerLot: 4000}, unknown)

	assert.Len(t, table.Names(), 8)
}

func TestTableOverride(t *testing.T) {
	table := NewTable(config.NewConfig().Risk)
	table.Set("Iron_Condor", Limit{StopLossPerLot: 1000, TargetPerLot: 2000})

	ic, _ := table.Lookup("IRON_CONDOR")
	assert.Equal(t, 1000.0, ic.StopLossPerLot)
}
