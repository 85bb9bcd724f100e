// internal/payload/payload.go
package payload

// Kind identifies the variant carried by a Payload on the wire.
type Kind string

const (
	KindConnect        Kind = "connect"
	KindMessage        Kind = "message"
	KindPrivateMessage Kind = "private_message"
	KindRoomCreate     Kind = "room_create"
	KindRoomJoin       Kind = "room_join"
	KindRoomList       Kind = "room_list"
	KindRoomAction     Kind = "room_action"
	KindClientSync     Kind = "client_sync"
	KindClientID       Kind = "client_id"
	KindDisconnect     Kind = "disconnect"
	KindMute           Kind = "mute"
	KindUnmute         Kind = "unmute"
	KindRoll           Kind = "roll"
	KindFlip           Kind = "flip"
	KindRoomResults    Kind = "room_results"
)

// SystemID is the sender id used for server-originated payloads. It is also the
// id a session carries before the server has issued it a real one.
const SystemID int64 = -1

// Payload is the closed set of protocol messages exchanged between a client and
// the server. Only the types declared in this package implement it.
type Payload interface {
	Kind() Kind
	Header() *Common
	sealed()
}

// Common holds the fields shared by every payload kind.
type Common struct {
	SenderID int64  `json:"sender_id"`
	Message  string `json:"message,omitempty"`
	TargetID *int64 `json:"target_id,omitempty"`
}

func (c *Common) Header() *Common { return c }
func (*Common) sealed()           {}

// Target returns the target id and whether one was supplied.
func (c *Common) Target() (int64, bool) {
	if c.TargetID == nil {
		return 0, false
	}
	return *c.TargetID, true
}

// Connect is the client's handshake carrying its display name.
type Connect struct {
	Common
	ClientName string `json:"client_name" validate:"required,max=64"`
}

// Message is a room broadcast. Message holds the text.
type Message struct {
	Common
}

// PrivateMessage is a direct message to TargetID within the sender's room.
type PrivateMessage struct {
	Common
}

// RoomCreate asks the server to create the room named in Message and move the sender into it.
type RoomCreate struct {
	Common
}

// RoomJoin asks the server to move the sender into the room named in Message.
type RoomJoin struct {
	Common
}

// RoomList asks for the room names containing Message (all rooms when empty).
type RoomList struct {
	Common
}

// RoomAction notifies that a client joined (Joined=true) or left a room.
type RoomAction struct {
	Common
	ClientName string `json:"client_name"`
	Room       string `json:"room"`
	Joined     bool   `json:"joined"`
}

// ClientSync describes an existing room member to a newly joined client.
type ClientSync struct {
	Common
	ClientID   int64  `json:"client_id"`
	ClientName string `json:"client_name"`
	Room       string `json:"room"`
}

// ClientID tells a client the id the server issued to it.
type ClientID struct {
	Common
	ClientID   int64  `json:"client_id"`
	ClientName string `json:"client_name"`
}

// Disconnect is sent by a client that quits, and by the server to announce that
// a client was disconnected.
type Disconnect struct {
	Common
	ClientID   int64  `json:"client_id"`
	ClientName string `json:"client_name"`
}

// Mute asks the server to mute the room member TargetID for the sender.
type Mute struct {
	Common
}

// Unmute reverses Mute.
type Unmute struct {
	Common
}

// RollKind selects between a single die and a sum of several dice.
type RollKind string

const (
	RollSingle RollKind = "single"
	RollMulti  RollKind = "multi"
)

// Roll is a dice command. Result is filled in by the server.
type Roll struct {
	Common
	RollKind RollKind `json:"roll_kind" validate:"required,oneof=single multi"`
	Sides    int      `json:"sides" validate:"gte=1,lte=1000"`
	Quantity int      `json:"quantity,omitempty" validate:"required_if=RollKind multi,gte=0,lte=100"`
	Result   int      `json:"result,omitempty"`
}

// Flip is a coin flip command.
type Flip struct {
	Common
}

// RoomResults answers a RoomList.
type RoomResults struct {
	Common
	Rooms []string `json:"rooms"`
}

func (*Connect) Kind() Kind        { return KindConnect }
func (*Message) Kind() Kind        { return KindMessage }
func (*PrivateMessage) Kind() Kind { return KindPrivateMessage }
func (*RoomCreate) Kind() Kind     { return KindRoomCreate }
func (*RoomJoin) Kind() Kind       { return KindRoomJoin }
func (*RoomList) Kind() Kind       { return KindRoomList }
func (*RoomAction) Kind() Kind     { return KindRoomAction }
func (*ClientSync) Kind() Kind     { return KindClientSync }
func (*ClientID) Kind() Kind       { return KindClientID }
func (*Disconnect) Kind() Kind     { return KindDisconnect }
func (*Mute) Kind() Kind           { return KindMute }
func (*Unmute) Kind() Kind         { return KindUnmute }
func (*Roll) Kind() Kind           { return KindRoll }
func (*Flip) Kind() Kind           { return KindFlip }
func (*RoomResults) Kind() Kind    { return KindRoomResults }

// New returns an empty payload of the given kind, or false for an unknown kind.
func New(kind Kind) (Payload, bool) {
	switch kind {
	case KindConnect:
		return &Connect{}, true
	case KindMessage:
		return &Message{}, true
	case KindPrivateMessage:
		return &PrivateMessage{}, true
	case KindRoomCreate:
		return &RoomCreate{}, true
	case KindRoomJoin:
		return &RoomJoin{}, true
	case KindRoomList:
		return &RoomList{}, true
	case KindRoomAction:
		return &RoomAction{}, true
	case KindClientSync:
		return &ClientSync{}, true
	case KindClientID:
		return &ClientID{}, true
	case KindDisconnect:
		return &Disconnect{}, true
	case KindMute:
		return &Mute{}, true
	case KindUnmute:
		return &Unmute{}, true
	case KindRoll:
		return &Roll{}, true
	case KindFlip:
		return &Flip{}, true
	case KindRoomResults:
		return &RoomResults{}, true
	}
	return nil, false
}
