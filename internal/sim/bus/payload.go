package bus

// Kind identifies one of the four negotiation events.
type Kind uint8

const (
	KindCommsInitiate Kind = iota + 1
	KindCommsResponse
	KindBoostSuccess
	KindPush
)

func (k Kind) String() string {
	switch k {
	case KindCommsInitiate:
		return "COMMS_INITIATE"
	case KindCommsResponse:
		return "COMMS_RESPONSE"
	case KindBoostSuccess:
		return "BOOST_SUCCESS"
	case KindPush:
		return "PUSH"
	default:
		return "UNKNOWN"
	}
}

// BoostStatus is an agent's position in a boost negotiation.
type BoostStatus uint8

const (
	Undefined BoostStatus = iota
	Waiting
	Boosting
	BeingBoosted
	Rejection
)

func (s BoostStatus) String() string {
	switch s {
	case Undefined:
		return "UNDEFINED"
	case Waiting:
		return "WAITING"
	case Boosting:
		return "BOOSTING"
	case BeingBoosted:
		return "BEING_BOOSTED"
	case Rejection:
		return "REJECTION"
	default:
		return "UNKNOWN"
	}
}

// Payload is one of Willingness, StatusReply, BoostSuccessAck or PushAck.
type Payload interface {
	Kind() Kind
}

// Willingness opens a negotiation. HoleID names the upward hole the initiator
// wants to go through; it may be empty.
type Willingness struct {
	Value  float64
	HoleID string
}

// StatusReply answers a Willingness with the responder's chosen role.
type StatusReply struct {
	Status BoostStatus
}

type BoostSuccessAck struct{}

type PushAck struct{}

func (Willingness) Kind() Kind     { return KindCommsInitiate }
func (StatusReply) Kind() Kind     { return KindCommsResponse }
func (BoostSuccessAck) Kind() Kind { return KindBoostSuccess }
func (PushAck) Kind() Kind         { return KindPush }

// Message is the immutable record handed to subscribers.
type Message struct {
	Seq       uint64
	Tick      uint64
	Sender    string
	Recipient string
	Payload   Payload
}

func (m Message) Kind() Kind {
	if m.Payload == nil {
		return 0
	}
	return m.Payload.Kind()
}
