package scenario

import "megamarket/internal/market"

// Global shocks are rare: each one is accepted with this probability once drawn.
const globalChance = 0.01

func mul(p market.Param, amt float64) market.Effect {
	return market.Effect{Param: p, Op: market.OpMultiply, Amount: amt}
}

func add(p market.Param, amt float64) market.Effect {
	return market.Effect{Param: p, Op: market.OpAdd, Amount: amt}
}

const (
	price = market.ParamPrice
	drift = market.ParamDrift
	sigma = market.ParamVolatility
)

// DefaultEvents is the built-in news bank.
func DefaultEvents() []market.Event {
	return []market.Event{
		{ID: 0, Scope: market.ScopeGlobal, Chance: globalChance,
			Description: "Global pandemic rocks economy!",
			Effects:     []market.Effect{mul(price, 0.76), add(drift, -0.25), mul(sigma, 2)}},
		{ID: 1, Scope: market.ScopeGlobal, Chance: globalChance,
			Description: "A boom in crypto has caused investors to withdraw their money from the stock market!",
			Effects:     []market.Effect{add(drift, -0.25), mul(sigma, 1.1)}},
		{ID: 2, Scope: market.ScopeGlobal, Chance: globalChance,
			Description: "A war declared between two international super powers! Causes supply chain issues.",
			Effects:     []market.Effect{mul(sigma, 2)}},
		{ID: 3, Scope: market.ScopeGlobal, Chance: globalChance,
			Description: "An economic bubble popped! Investors flock to assets which make sense.",
			Effects:     []market.Effect{add(drift, 0.25), mul(sigma, 1.1)}},

		{ID: 4, Scope: market.ScopeSingle,
			Description: "Dividend paid! All shareholders receive money equal to 10% of their holdings!",
			Effects:     []market.Effect{mul(drift, 0.05)}},
		{ID: 5, Scope: market.ScopeSingle,
			Description: "Shady dealings and corruption discovered in upper management! Several executives under investigation.",
			Effects:     []market.Effect{add(drift, -0.5), mul(sigma, 1.5)}},
		{ID: 6, Scope: market.ScopeSingle,
			Description: "Major acquisition announced!",
			Effects:     []market.Effect{add(drift, 0.35), mul(sigma, 1.25)}},
		{ID: 7, Scope: market.ScopeSingle,
			Description: "Major acquisition falls through!",
			Effects:     []market.Effect{add(drift, -0.35), mul(sigma, 1.25)}},

		{ID: 8, Scope: market.ScopeSector, Sector: SectorEnergy,
			Description: "Major oil spill in the gulf of Mexico. Company says they're sorry, regret catastrophe.",
			Effects:     []market.Effect{mul(price, 0.8), add(drift, -0.2), mul(sigma, 1.2)}},
		{ID: 9, Scope: market.ScopeSector, Sector: SectorEnergy,
			Description: "New green tech is threatening company's market share.",
			Effects:     []market.Effect{add(drift, -0.1)}},
		{ID: 10, Scope: market.ScopeSector, Sector: SectorEnergy,
			Description: "New green tech is bringing new government contracts and subsidies to company.",
			Effects:     []market.Effect{add(drift, 0.3)}},
		{ID: 11, Scope: market.ScopeSector, Sector: SectorEnergy,
			Description: "Purchased an overseas plant!",
			Effects:     []market.Effect{mul(price, 1.2), add(drift, 0.3), mul(sigma, 0.9)}},
		{ID: 12, Scope: market.ScopeSector, Sector: SectorEnergy,
			Description: "Much anticipated plant purchase falls through.",
			Effects:     []market.Effect{mul(price, 0.9), add(drift, -0.3), mul(sigma, 1.1)}},

		{ID: 13, Scope: market.ScopeSector, Sector: SectorTech,
			Description: "Exciting new product is announced!",
			Effects:     []market.Effect{mul(price, 1.2), add(drift, 0.3), mul(sigma, 1.5)}},
		{ID: 14, Scope: market.ScopeSector, Sector: SectorTech,
			Description: "New product is a colossal failure.",
			Effects:     []market.Effect{mul(price, 0.7), add(drift, -0.5), mul(sigma, 0.8)}},
		{ID: 15, Scope: market.ScopeSector, Sector: SectorTech,
			Description: "Company is impacted by global chip shortage.",
			Effects:     []market.Effect{mul(sigma, 1.5)}},
		{ID: 16, Scope: market.ScopeSector, Sector: SectorTech,
			Description: "A major hack has caused loss in consumer confidence.",
			Effects:     []market.Effect{add(drift, -0.3), mul(sigma, 1.4)}},

		{ID: 17, Scope: market.ScopeSector, Sector: SectorHealthcare,
			Description: "Vaccine trials catastrophically fail.",
			Effects:     []market.Effect{add(drift, -0.5)}},
		{ID: 18, Scope: market.ScopeSector, Sector: SectorHealthcare,
			Description: "Sued by victims of drug.",
			Effects:     []market.Effect{mul(sigma, 1.6)}},
		{ID: 19, Scope: market.ScopeSector, Sector: SectorHealthcare,
			Description: "Acquired another pharmaceutical company.",
			Effects:     []market.Effect{mul(price, 1.2), mul(drift, 1.1), mul(sigma, 1.5)}},
		{ID: 20, Scope: market.ScopeSector, Sector: SectorHealthcare,
			Description: "Patent expiration on drug where company dominated market.",
			Effects:     []market.Effect{add(drift, -0.5), mul(sigma, 1.3)}},
	}
}

// DefaultCatalog wraps DefaultEvents. The built-in table is known valid.
func DefaultCatalog() *market.Catalog {
	c, err := market.NewCatalog(DefaultEvents())
	if err != nil {
		panic(err)
	}
	return c
}
