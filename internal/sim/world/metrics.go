package world

import "holechase.ai/internal/sim/bus"

type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents      int            `json:"agents"`
	Observers   int            `json:"observers"`
	PlayerFloor int            `json:"player_floor"`
	States      map[string]int `json:"states"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	// Running totals since the world was created or resumed.
	TransitionsTotal uint64    `json:"transitions_total"`
	RecoveriesTotal  uint64    `json:"recoveries_total"`
	CatchesTotal     uint64    `json:"catches_total"`
	BusTotal         bus.Stats `json:"bus_total"`
}

type QueueDepths struct {
	ObserverJoin      int `json:"observer_join"`
	ObserverSubscribe int `json:"observer_subscribe"`
	ObserverLeave     int `json:"observer_leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64, busStats bus.Stats) {
	w.totals.transitions += uint64(len(w.transitions))
	for _, tr := range w.transitions {
		if tr.Reason != "" {
			w.totals.recoveries++
		}
	}
	w.totals.catches += uint64(len(w.catches))
	w.totals.bus.Published += busStats.Published
	w.totals.bus.Delivered += busStats.Delivered
	w.totals.bus.Dropped += busStats.Dropped

	states := map[string]int{}
	for _, ab := range w.agents {
		states[ab.fsm.State().String()]++
	}
	w.metrics.Store(WorldMetrics{
		Tick:        nextTick,
		Agents:      len(w.agents),
		Observers:   len(w.observers),
		PlayerFloor: w.player.Floor(),
		States:      states,
		QueueDepths: QueueDepths{
			ObserverJoin:      len(w.observerJoin),
			ObserverSubscribe: len(w.observerSubscribe),
			ObserverLeave:     len(w.observerLeave),
		},
		StepMS:           stepMS,
		TransitionsTotal: w.totals.transitions,
		RecoveriesTotal:  w.totals.recoveries,
		CatchesTotal:     w.totals.catches,
		BusTotal:         w.totals.bus,
	})
}
