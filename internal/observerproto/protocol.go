package observerproto

import "encoding/json"

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeTick       = "TICK"
	TypeTransition = "TRANSITION"
	TypeCatch      = "CATCH"
)

// DecodeType returns the "type" field of a raw message.
func DecodeType(b []byte) (string, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &base); err != nil {
		return "", err
	}
	return base.Type, nil
}

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: only stream agents on these floors. Empty means all floors.
	Floors []int `json:"floors,omitempty"`
	// Optional: skip TRANSITION/CATCH event messages and receive TICK only.
	TicksOnly bool `json:"ticks_only,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	RunID           string      `json:"run_id"`
	Level           string      `json:"level"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`

	Floors []FloorInfo `json:"floors"`
	Holes  []HoleInfo  `json:"holes"`
	Walls  []WallInfo  `json:"walls"`
}

type WorldParams struct {
	TickRateHz int     `json:"tick_rate_hz"`
	Seed       int64   `json:"seed"`
	AgentSpeed float64 `json:"agent_speed"`
}

type FloorInfo struct {
	Number    int     `json:"number"`
	Elevation float64 `json:"elevation"`
}

type HoleInfo struct {
	ID    string     `json:"id"`
	Floor int        `json:"floor"`
	Pos   [3]float64 `json:"pos"`
}

type WallInfo struct {
	Floor int        `json:"floor"`
	Min   [2]float64 `json:"min"`
	Max   [2]float64 `json:"max"`
}

// Server -> Client. Sent every tick. Slow clients only ever see the latest one.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Player PlayerState  `json:"player"`
	Agents []AgentState `json:"agents"`
	Bus    BusStats     `json:"bus"`
}

type PlayerState struct {
	ID    string     `json:"id"`
	Floor int        `json:"floor"`
	Pos   [3]float64 `json:"pos"`
}

type AgentState struct {
	ID      string `json:"id"`
	Profile string `json:"profile"`
	Floor   int    `json:"floor"`

	Pos [3]float64 `json:"pos"`
	Yaw float64    `json:"yaw"`

	State     string `json:"state"`
	Boost     string `json:"boost"`
	AllyBoost string `json:"ally_boost"`

	TargetID     string   `json:"target_id,omitempty"`
	UpwardHoleID string   `json:"upward_hole_id,omitempty"`
	Rejections   []string `json:"rejections,omitempty"`
}

type BusStats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Server -> Client. One per FSM state change.
type TransitionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`
	Floor           int    `json:"floor"`
	From            string `json:"from"`
	To              string `json:"to"`
	Reason          string `json:"reason,omitempty"`
}

// Server -> Client. An agent got within catch range of the player.
type CatchMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	AgentID         string  `json:"agent_id"`
	QuarryID        string  `json:"quarry_id"`
	Floor           int     `json:"floor"`
	Distance        float64 `json:"distance"`
}
