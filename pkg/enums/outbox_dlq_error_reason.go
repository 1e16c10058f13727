package enums

import "fmt"

// OutboxDLQErrorReason is why the relay gave up on an outbox event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUndecodable: unknown event type, aggregate mismatch or a
	// payload that does not decode into the registered type.
	OutboxDLQReasonUndecodable OutboxDLQErrorReason = "undecodable"
	// OutboxDLQReasonNonRetryable: the broker rejected the message, or no
	// topic is configured for it.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonUndecodable, OutboxDLQReasonNonRetryable, OutboxDLQReasonMaxAttempts:
		return true
	}
	return false
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	if r := OutboxDLQErrorReason(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid dlq error reason %q", value)
}
