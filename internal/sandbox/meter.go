package sandbox

import "github.com/cathedral-fabric/fabric/pkg/core"

// PageSize is the fixed sandbox memory unit, 64 KiB, per section 4.7.
const PageSize = 64 * 1024

// HostCallFuelCost is the default per-host-call fuel multiplier spec
// section 4.7 specifies on top of the per-instruction fuel decrement.
const HostCallFuelCost = 1000

// Meter tracks a single tool invocation's fuel and memory consumption
// against its granted bound, raising OutOfFuel/OutOfMemory the instant
// either limit is crossed.
type Meter struct {
	fuelRemaining uint64
	pagesUsed     uint64
	maxPages      uint64
}

// NewMeter returns a Meter enforcing bound. Memory is tracked in 64 KiB
// pages; MemBytes is rounded up to the nearest whole page.
func NewMeter(bound core.ResourceBound) *Meter {
	maxPages := bound.MemBytes / PageSize
	if bound.MemBytes%PageSize != 0 {
		maxPages++
	}
	return &Meter{fuelRemaining: bound.Fuel, maxPages: maxPages}
}

// ConsumeFuel decrements the fuel counter by n, returning CodeOutOfFuel
// if doing so would take it below zero. The counter is left at zero on
// exhaustion rather than wrapping.
func (m *Meter) ConsumeFuel(n uint64) error {
	if n > m.fuelRemaining {
		m.fuelRemaining = 0
		return core.NewError(core.CodeOutOfFuel, "fuel exhausted")
	}
	m.fuelRemaining -= n
	return nil
}

// ConsumePages grows the memory footprint by n pages, returning
// CodeOutOfMemory if doing so would exceed the granted bound.
func (m *Meter) ConsumePages(n uint64) error {
	if m.pagesUsed+n > m.maxPages {
		return core.NewError(core.CodeOutOfMemory, "memory page limit exceeded")
	}
	m.pagesUsed += n
	return nil
}

// FuelRemaining reports the current fuel balance.
func (m *Meter) FuelRemaining() uint64 { return m.fuelRemaining }

// PagesUsed reports the current memory footprint in pages.
func (m *Meter) PagesUsed() uint64 { return m.pagesUsed }
