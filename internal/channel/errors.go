package channel

import "errors"

// This error is returned when a message that was already committed to a channel is committed
// again. Messages are single use.
var ErrAlreadyCommitted = errors.New("message was already committed for sending")

// This error is returned when a reliable message needs more fragments than a fragment chain
// can index.
var ErrMessageTooLarge = errors.New("message exceeds the maximum fragment count")

// This error is returned when a reliable message is added to the awaiting confirmation map
// under a sequence that is already awaiting.
var ErrAlreadyAwaiting = errors.New("message is already awaiting confirmation")
