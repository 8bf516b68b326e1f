package world

type WorldConfig struct {
	ID    string
	RunID string

	TickRateHz int
	Seed       int64

	// Distances per tick.
	AgentSpeed  float64
	PlayerSpeed float64

	ArrivalTolerance float64

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "tower"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 30
	}
	if c.AgentSpeed <= 0 {
		c.AgentSpeed = 0.2
	}
	if c.PlayerSpeed <= 0 {
		c.PlayerSpeed = 0.25
	}
	if c.ArrivalTolerance <= 0 {
		c.ArrivalTolerance = 1
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
}
