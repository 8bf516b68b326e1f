package tuning

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"holechase.ai/internal/sim/enemy"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Seed               int64   `yaml:"seed" json:"seed"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	AgentSpeed         float64 `yaml:"agent_speed" json:"agent_speed"`
	ArrivalTolerance   float64 `yaml:"arrival_tolerance" json:"arrival_tolerance"`
	CatchThreshold     float64 `yaml:"catch_threshold" json:"catch_threshold"`
	WallProbeDistance  float64 `yaml:"wall_probe_distance" json:"wall_probe_distance"`
	CollinearTolDeg    float64 `yaml:"collinear_tolerance_deg" json:"collinear_tolerance_deg"`
	NegotiationTimeout float64 `yaml:"negotiation_timeout_sec" json:"negotiation_timeout_sec"`
	StallTimeout       float64 `yaml:"stall_timeout_sec" json:"stall_timeout_sec"`

	Profiles map[string]Profile `yaml:"profiles" json:"profiles"`
}

// Profile is a behavior profile in wall-clock units. Durations are seconds and
// are converted to ticks with the tick rate.
type Profile struct {
	PlayerDetectionRange float64 `yaml:"player_detection_range" json:"player_detection_range"`
	PushRange            float64 `yaml:"push_range" json:"push_range"`
	HoleDetectionRange   float64 `yaml:"hole_detection_range" json:"hole_detection_range"`
	CommunicationRange   float64 `yaml:"communication_range" json:"communication_range"`
	PushProbability      float64 `yaml:"push_probability" json:"push_probability"`
	PushCooldownSec      float64 `yaml:"push_cooldown_sec" json:"push_cooldown_sec"`
	PushRetrySec         float64 `yaml:"push_retry_sec" json:"push_retry_sec"`
	TurnIntervalSec      float64 `yaml:"turn_interval_sec" json:"turn_interval_sec"`
	WillingnessMin       float64 `yaml:"willingness_min" json:"willingness_min"`
	WillingnessMax       float64 `yaml:"willingness_max" json:"willingness_max"`
	RejectionMemory      int     `yaml:"rejection_memory" json:"rejection_memory"`
	CrowdLimit           int     `yaml:"crowd_limit" json:"crowd_limit"`
}

func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

// Parse decodes a tuning document, checks it against the embedded schema and
// fills omitted fields from Defaults.
func Parse(raw []byte) (Tuning, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validateSchema(doc); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}

	t := Defaults()
	profiles := t.Profiles
	t.Profiles = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	// Profiles named in the file replace the built-ins with the same name.
	for name, p := range profiles {
		if _, ok := t.Profiles[name]; !ok {
			if t.Profiles == nil {
				t.Profiles = map[string]Profile{}
			}
			t.Profiles[name] = p
		}
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Defaults mirrors the two stock enemy kinds: a fast, pushy hunter and a
// far-sighted cooperator that is keener to team up for a boost.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         30,
		Seed:               1337,
		SnapshotEveryTicks: 3000,
		AgentSpeed:         6,
		ArrivalTolerance:   1,
		CatchThreshold:     1.5,
		WallProbeDistance:  20,
		CollinearTolDeg:    5,
		NegotiationTimeout: 10,
		StallTimeout:       1,
		Profiles: map[string]Profile{
			"hunter": {
				PlayerDetectionRange: 50,
				PushRange:            25,
				HoleDetectionRange:   100,
				CommunicationRange:   25,
				PushProbability:      0.5,
				PushCooldownSec:      5,
				PushRetrySec:         1,
				TurnIntervalSec:      1,
				WillingnessMin:       0.3,
				WillingnessMax:       0.5,
				RejectionMemory:      4,
			},
			"cooperator": {
				PlayerDetectionRange: 75,
				PushRange:            15,
				HoleDetectionRange:   100,
				CommunicationRange:   15,
				PushProbability:      0.25,
				PushCooldownSec:      5,
				PushRetrySec:         1,
				TurnIntervalSec:      3,
				WillingnessMin:       0.5,
				WillingnessMax:       0.8,
				RejectionMemory:      4,
				CrowdLimit:           3,
			},
		},
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.AgentSpeed < 0 {
		return fmt.Errorf("agent_speed must be >= 0")
	}
	if len(t.Profiles) == 0 {
		return fmt.Errorf("no profiles")
	}
	for _, name := range t.ProfileNames() {
		p := t.Profiles[name]
		if p.WillingnessMin > p.WillingnessMax {
			return fmt.Errorf("profile %s: willingness_min > willingness_max", name)
		}
		if p.WillingnessMin < 0 || p.WillingnessMax > 1 {
			return fmt.Errorf("profile %s: willingness outside [0,1]", name)
		}
		if p.PushProbability < 0 || p.PushProbability > 1 {
			return fmt.Errorf("profile %s: push_probability outside [0,1]", name)
		}
		if p.PlayerDetectionRange <= 0 || p.CommunicationRange <= 0 {
			return fmt.Errorf("profile %s: ranges must be > 0", name)
		}
	}
	return nil
}

func (t Tuning) ProfileNames() []string {
	out := make([]string, 0, len(t.Profiles))
	for name := range t.Profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Ticks converts seconds to whole ticks, rounding up so that any positive
// duration lasts at least one tick.
func (t Tuning) Ticks(sec float64) uint64 {
	if sec <= 0 || t.TickRateHz <= 0 {
		return 0
	}
	return uint64(math.Ceil(sec*float64(t.TickRateHz) - 1e-9))
}

// SpeedPerTick is the distance an agent covers in one tick.
func (t Tuning) SpeedPerTick() float64 {
	if t.TickRateHz <= 0 {
		return 0
	}
	return t.AgentSpeed / float64(t.TickRateHz)
}

// EnemyProfile resolves a named profile into the FSM's tick-based form.
func (t Tuning) EnemyProfile(name string) (enemy.Profile, error) {
	p, ok := t.Profiles[name]
	if !ok {
		return enemy.Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return enemy.Profile{
		Name:                    name,
		PlayerDetectionRange:    p.PlayerDetectionRange,
		PushRange:               p.PushRange,
		HoleDetectionRange:      p.HoleDetectionRange,
		CommunicationRange:      p.CommunicationRange,
		CatchThreshold:          t.CatchThreshold,
		ArrivalTolerance:        t.ArrivalTolerance,
		WallProbeDistance:       t.WallProbeDistance,
		CollinearToleranceDeg:   t.CollinearTolDeg,
		PushProbability:         p.PushProbability,
		PushCooldownTicks:       t.Ticks(p.PushCooldownSec),
		PushRetryTicks:          t.Ticks(p.PushRetrySec),
		TurnIntervalTicks:       t.Ticks(p.TurnIntervalSec),
		WillingnessMin:          p.WillingnessMin,
		WillingnessMax:          p.WillingnessMax,
		RejectionMemory:         p.RejectionMemory,
		CrowdLimit:              p.CrowdLimit,
		NegotiationTimeoutTicks: t.Ticks(t.NegotiationTimeout),
		StallLimitTicks:         t.Ticks(t.StallTimeout),
	}, nil
}

// JSON renders the tuning set as stored in the index.
func (t Tuning) JSON() ([]byte, error) {
	return json.Marshal(t)
}
