package enemy

// Profile is the per-agent behavior data. Agent variants differ only here.
type Profile struct {
	Name string

	PlayerDetectionRange  float64
	PushRange             float64
	HoleDetectionRange    float64
	CommunicationRange    float64
	CatchThreshold        float64
	ArrivalTolerance      float64
	WallProbeDistance     float64
	RoamLookahead         float64
	CollinearToleranceDeg float64

	PushProbability   float64
	PushCooldownTicks uint64
	PushRetryTicks    uint64
	TurnIntervalTicks uint64

	WillingnessMin float64
	WillingnessMax float64

	RejectionMemory         int
	CrowdLimit              int
	NegotiationTimeoutTicks uint64
	// StallLimitTicks is how many consecutive blocked steps a walking state
	// tolerates before giving up. 0 disables the check.
	StallLimitTicks uint64
}

// intersectionTurnChance is the draw an agent at an intersection must exceed to turn.
const intersectionTurnChance = 0.5

func (p *Profile) applyDefaults() {
	if p.ArrivalTolerance <= 0 {
		p.ArrivalTolerance = 1
	}
	if p.WallProbeDistance <= 0 {
		p.WallProbeDistance = 20
	}
	if p.RoamLookahead <= 0 {
		p.RoamLookahead = 5
	}
	if p.CollinearToleranceDeg <= 0 {
		p.CollinearToleranceDeg = 5
	}
	if p.RejectionMemory <= 0 {
		p.RejectionMemory = 4
	}
	if p.WillingnessMax < p.WillingnessMin {
		p.WillingnessMin, p.WillingnessMax = p.WillingnessMax, p.WillingnessMin
	}
}
