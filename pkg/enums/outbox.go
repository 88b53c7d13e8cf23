package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOpportunity OutboxAggregateType = "opportunity"
	AggregateProject     OutboxAggregateType = "project"
	AggregateTreasury    OutboxAggregateType = "treasury"
	AggregateMembership  OutboxAggregateType = "membership"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOpportunity,
	AggregateProject,
	AggregateTreasury,
	AggregateMembership,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRoleAssigned         OutboxEventType = "role_assigned"
	EventAttributionCompleted OutboxEventType = "attribution_completed"
	EventBonusRunExecuted     OutboxEventType = "bonus_run_executed"
	EventRankPromoted         OutboxEventType = "rank_promoted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRoleAssigned,
	EventAttributionCompleted,
	EventBonusRunExecuted,
	EventRankPromoted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason categorizes terminal publish failures.
type OutboxDLQErrorReason string

const (
	DLQReasonMaxAttempts      OutboxDLQErrorReason = "max_attempts_exceeded"
	DLQReasonUnroutable       OutboxDLQErrorReason = "unroutable_event"
	DLQReasonInvalidPayload   OutboxDLQErrorReason = "invalid_payload"
	DLQReasonPermanentPublish OutboxDLQErrorReason = "permanent_publish_error"
)

var validDLQReasons = []OutboxDLQErrorReason{
	DLQReasonMaxAttempts,
	DLQReasonUnroutable,
	DLQReasonInvalidPayload,
	DLQReasonPermanentPublish,
}

// IsValid reports whether the value is a known OutboxDLQErrorReason.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validDLQReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
