package protocol

// PacketType identifies what a packet carries. It occupies bits 2-5 of the service byte so
// there can never be more than 16 of them.
type PacketType uint8

const (
	UserData PacketType = iota
	ConnectAck
	FinAck
	FinResp
	ConfirmDelivery
	Ping
	Pong
	ConnectionError
	PartialMessage
	MTUExpandRequest
	MTUSuccess
)

// Returns whether the packet type is one of the known values.
func (t PacketType) Valid() bool {
	return t <= MTUSuccess
}

// Returns whether the packet type is consumed by the protocol rather than the application.
func (t PacketType) Control() bool {
	return t != UserData && t.Valid()
}

func (t PacketType) String() string {
	switch t {
	case UserData:
		return "UserData"
	case ConnectAck:
		return "ConnectAck"
	case FinAck:
		return "FinAck"
	case FinResp:
		return "FinResp"
	case ConfirmDelivery:
		return "ConfirmDelivery"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	case ConnectionError:
		return "ConnectionError"
	case PartialMessage:
		return "PartialMessage"
	case MTUExpandRequest:
		return "MTUExpandRequest"
	case MTUSuccess:
		return "MTUSuccess"
	default:
		return "Unknown"
	}
}

// Packs a delivery type and a packet type into the service byte.
func ServiceByte(d DeliveryType, t PacketType) uint8 {
	return uint8(d)&0x3 | (uint8(t)&0xF)<<2
}

// Unpacks the service byte into its delivery type and packet type.
func SplitServiceByte(b uint8) (DeliveryType, PacketType) {
	return DeliveryType(b & 0x3), PacketType((b >> 2) & 0xF)
}
