package documents

import "github.com/angelmondragon/stockledger-backend/pkg/enums"

// policy describes the lifecycle of one document kind.
type policy struct {
	prefix       string
	prepare      enums.DocumentAction
	intermediate enums.DocumentStatus
	committed    enums.DocumentStatus
	// setLines kinds hold at most one line per product.
	setLines bool
}

var policies = map[enums.DocumentKind]policy{
	enums.DocumentReceipt: {
		prefix:       "GR",
		prepare:      enums.DocumentActionSubmit,
		intermediate: enums.DocumentStatusPending,
		committed:    enums.DocumentStatusReceived,
	},
	enums.DocumentIssue: {
		prefix:       "GI",
		prepare:      enums.DocumentActionApprove,
		intermediate: enums.DocumentStatusApproved,
		committed:    enums.DocumentStatusIssued,
	},
	enums.DocumentTransfer: {
		prefix:       "TR",
		prepare:      enums.DocumentActionApprove,
		intermediate: enums.DocumentStatusApproved,
		committed:    enums.DocumentStatusCompleted,
	},
	enums.DocumentCounting: {
		prefix:       "IC",
		prepare:      enums.DocumentActionStart,
		intermediate: enums.DocumentStatusInProgress,
		committed:    enums.DocumentStatusCompleted,
		setLines:     true,
	},
	enums.DocumentPosting: {
		prefix:       "IP",
		prepare:      enums.DocumentActionApprove,
		intermediate: enums.DocumentStatusApproved,
		committed:    enums.DocumentStatusPosted,
		setLines:     true,
	},
	enums.DocumentRevaluation: {
		prefix:       "RV",
		prepare:      enums.DocumentActionApprove,
		intermediate: enums.DocumentStatusApproved,
		committed:    enums.DocumentStatusPosted,
		setLines:     true,
	},
}

func policyFor(kind enums.DocumentKind) (policy, bool) {
	p, ok := policies[kind]
	return p, ok
}

// Prefix returns the number prefix of kind.
func Prefix(kind enums.DocumentKind) string {
	return policies[kind].prefix
}

// IsCommitted reports whether status is the committed state of kind.
func IsCommitted(kind enums.DocumentKind, status enums.DocumentStatus) bool {
	p, ok := policies[kind]
	return ok && p.committed == status
}

// editable reports whether lines may still change in status.
func editable(kind enums.DocumentKind, status enums.DocumentStatus) bool {
	if status == enums.DocumentStatusDraft {
		return true
	}
	return kind == enums.DocumentCounting && status == enums.DocumentStatusInProgress
}

func (p policy) cancellable(status enums.DocumentStatus) bool {
	return status == enums.DocumentStatusDraft || status == p.intermediate
}
