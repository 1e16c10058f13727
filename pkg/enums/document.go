package enums

import "fmt"

// DocumentKind identifies one of the six stock document workflows.
type DocumentKind string

const (
	DocumentReceipt     DocumentKind = "receipt"
	DocumentIssue       DocumentKind = "issue"
	DocumentTransfer    DocumentKind = "transfer"
	DocumentCounting    DocumentKind = "counting"
	DocumentPosting     DocumentKind = "posting"
	DocumentRevaluation DocumentKind = "revaluation"
)

var validDocumentKinds = []DocumentKind{
	DocumentReceipt,
	DocumentIssue,
	DocumentTransfer,
	DocumentCounting,
	DocumentPosting,
	DocumentRevaluation,
}

func (k DocumentKind) String() string {
	return string(k)
}

func (k DocumentKind) IsValid() bool {
	for _, candidate := range validDocumentKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseDocumentKind(value string) (DocumentKind, error) {
	for _, candidate := range validDocumentKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document kind %q", value)
}

// DocumentStatus is a state in a document lifecycle.
type DocumentStatus string

const (
	DocumentStatusDraft      DocumentStatus = "DRAFT"
	DocumentStatusPending    DocumentStatus = "PENDING"
	DocumentStatusApproved   DocumentStatus = "APPROVED"
	DocumentStatusInProgress DocumentStatus = "IN_PROGRESS"
	DocumentStatusReceived   DocumentStatus = "RECEIVED"
	DocumentStatusIssued     DocumentStatus = "ISSUED"
	DocumentStatusCompleted  DocumentStatus = "COMPLETED"
	DocumentStatusPosted     DocumentStatus = "POSTED"
	DocumentStatusCancelled  DocumentStatus = "CANCELLED"
)

var validDocumentStatuses = []DocumentStatus{
	DocumentStatusDraft,
	DocumentStatusPending,
	DocumentStatusApproved,
	DocumentStatusInProgress,
	DocumentStatusReceived,
	DocumentStatusIssued,
	DocumentStatusCompleted,
	DocumentStatusPosted,
	DocumentStatusCancelled,
}

func (s DocumentStatus) String() string {
	return string(s)
}

func (s DocumentStatus) IsValid() bool {
	for _, candidate := range validDocumentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseDocumentStatus(value string) (DocumentStatus, error) {
	for _, candidate := range validDocumentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document status %q", value)
}

// DocumentAction is a lifecycle transition request.
type DocumentAction string

const (
	DocumentActionSubmit  DocumentAction = "submit"
	DocumentActionApprove DocumentAction = "approve"
	DocumentActionStart   DocumentAction = "start"
	DocumentActionCommit  DocumentAction = "commit"
	DocumentActionCancel  DocumentAction = "cancel"
)

var validDocumentActions = []DocumentAction{
	DocumentActionSubmit,
	DocumentActionApprove,
	DocumentActionStart,
	DocumentActionCommit,
	DocumentActionCancel,
}

func (a DocumentAction) IsValid() bool {
	for _, candidate := range validDocumentActions {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseDocumentAction(value string) (DocumentAction, error) {
	for _, candidate := range validDocumentActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document action %q", value)
}
