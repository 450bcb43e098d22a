package protocol

import "errors"

var (
	ErrInvalidAckMode      = errors.New("ack mode is not supported by the negotiated STOMP version")
	ErrNackNotSupported    = errors.New("NACK requires STOMP 1.1 or newer")
	ErrRequeueNotSupported = errors.New("requeue is not supported by this broker dialect")
	ErrUnknownExtension    = errors.New("unknown broker extension header")
	ErrPriorityOutOfRange  = errors.New("activemq.priority must be between 0 and 127")
)
