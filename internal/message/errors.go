package message

import "errors"

// This error is returned when a datagram is shorter than the packet header or declares a body
// longer than the bytes that follow it.
var ErrMalformedPacket = errors.New("malformed packet")

// This error is returned when a control packet body cannot be decoded into its payload.
var ErrMalformedPayload = errors.New("malformed payload")

// This error is returned when a body does not fit the 16-bit body length field.
var ErrBodyTooLarge = errors.New("body exceeds the maximum packet body size")
