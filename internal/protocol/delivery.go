package protocol

// DeliveryType is the guarantee a message is delivered with. It occupies the two low bits
// of the service byte.
type DeliveryType uint8

const (
	Unreliable DeliveryType = iota
	Sequenced
	Reliable
)

// Returns whether the delivery type is one of the known values.
func (d DeliveryType) Valid() bool {
	return d <= Reliable
}

// Returns whether messages of this delivery type carry a sequence number.
func (d DeliveryType) Numbered() bool {
	switch d {
	case Sequenced, Reliable:
		return true
	default:
		return false
	}
}

func (d DeliveryType) String() string {
	switch d {
	case Unreliable:
		return "unreliable"
	case Sequenced:
		return "sequenced"
	case Reliable:
		return "reliable"
	default:
		return "unknown"
	}
}
