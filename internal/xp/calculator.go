package xp

import (
	"math"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

// Calculator converts admitted gameplay events into final XP awards. It is
// deterministic and side-effect-free; all I/O lives in the caller.
type Calculator struct {
	modifiers      map[domain.EventType]float64
	difficulty     map[string]float64
	terralithBonus float64
	hardcoreBonus  float64
	catalog        map[string]config.CatalogEntry
}

// NewCalculator builds a calculator from configuration
func NewCalculator(cfg *config.XPConfig) *Calculator {
	modifiers := make(map[domain.EventType]float64, len(cfg.Modifiers))
	for t, m := range cfg.Modifiers {
		modifiers[domain.EventType(t)] = m
	}
	return &Calculator{
		modifiers:      modifiers,
		difficulty:     cfg.Difficulty,
		terralithBonus: cfg.TerralithBonus,
		hardcoreBonus:  cfg.HardcoreBonus,
		catalog:        cfg.Catalog,
	}
}

// FinalXP computes the XP award for an event. Sources present in the
// achievement catalog take the catalog path: catalog base XP scaled by the
// difficulty tier and the combined terralith/hardcore bonus multiplier.
// Everything else takes the generic path: base XP scaled by the per-type
// modifier, floored at 1 whenever base XP is positive.
func (c *Calculator) FinalXP(eventType domain.EventType, eventSource string, baseXP int) int {
	if entry, ok := c.catalog[eventSource]; ok {
		return c.catalogXP(entry)
	}

	modifier, ok := c.modifiers[eventType]
	if !ok {
		modifier = 1.0
	}

	final := int(math.Round(float64(baseXP) * modifier))
	if baseXP > 0 && final < 1 {
		final = 1
	}
	return final
}

// catalogXP applies the difficulty multiplier and bonus multiplier to a
// catalog entry. Bonuses add into a single multiplier: base × difficulty ×
// (1 + terralith + hardcore).
func (c *Calculator) catalogXP(entry config.CatalogEntry) int {
	diff, ok := c.difficulty[entry.Difficulty]
	if !ok {
		diff = 1.0
	}

	bonus := 1.0
	if entry.Terralith {
		bonus += c.terralithBonus
	}
	if entry.Hardcore {
		bonus += c.hardcoreBonus
	}

	final := int(math.Round(float64(entry.BaseXP) * diff * bonus))
	if entry.BaseXP > 0 && final < 1 {
		final = 1
	}
	return final
}

// InCatalog reports whether a source has a catalog entry
func (c *Calculator) InCatalog(eventSource string) bool {
	_, ok := c.catalog[eventSource]
	return ok
}
