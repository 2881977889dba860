package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/hedgemesh/internal/config"
	"github.com/sawpanic/hedgemesh/internal/marketdata"
)

func TestMarketContextFor_ReadsLiveManualOverride(t *testing.T) {
	quotes := marketdata.New(marketdata.DefaultConfig())
	store := config.NewStore(&config.Root{})

	mc := marketContextFor(quotes, store)
	assert.False(t, mc.Risk.ManualOverride, "override must start off")

	store.SetManualOverride(true)
	mc = marketContextFor(quotes, store)
	assert.True(t, mc.Risk.ManualOverride, "marketContextFor must read the live override on every call")

	store.SetManualOverride(false)
	mc = marketContextFor(quotes, store)
	assert.False(t, mc.Risk.ManualOverride)
}

func TestMarketContextFor_NilStoreDefaultsOverrideOff(t *testing.T) {
	quotes := marketdata.New(marketdata.DefaultConfig())
	mc := marketContextFor(quotes, nil)
	assert.False(t, mc.Risk.ManualOverride)
}
