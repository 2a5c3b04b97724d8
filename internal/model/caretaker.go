package model

import (
	"fmt"
	"time"

	"github.com/and161185/medalert/internal/errs"
)

// ApprovalStatus is the state of a caretaker request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// CaretakerApproval tracks one caretaker request. Transitions only leave pending.
type CaretakerApproval struct {
	CaretakerID string         `json:"caretakerId"`
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requestedAt"`
	ApprovedAt  *time.Time     `json:"approvedAt,omitempty"`
	RejectedAt  *time.Time     `json:"rejectedAt,omitempty"`
}

// NewCaretakerApproval opens a pending request.
func NewCaretakerApproval(caretakerID string, at time.Time) CaretakerApproval {
	return CaretakerApproval{CaretakerID: caretakerID, Status: ApprovalPending, RequestedAt: at}
}

// Approve returns the approved copy of a pending request.
func (a CaretakerApproval) Approve(at time.Time) (CaretakerApproval, error) {
	if a.Status != ApprovalPending {
		return a, fmt.Errorf("approve %s request: %w", a.Status, errs.ErrInvalidInput)
	}
	a.Status = ApprovalApproved
	a.ApprovedAt = &at
	return a, nil
}

// Reject returns the rejected copy of a pending request.
func (a CaretakerApproval) Reject(at time.Time) (CaretakerApproval, error) {
	if a.Status != ApprovalPending {
		return a, fmt.Errorf("reject %s request: %w", a.Status, errs.ErrInvalidInput)
	}
	a.Status = ApprovalRejected
	a.RejectedAt = &at
	return a, nil
}

// Decide applies a decision status to a pending request.
func (a CaretakerApproval) Decide(status ApprovalStatus, at time.Time) (CaretakerApproval, error) {
	switch status {
	case ApprovalApproved:
		return a.Approve(at)
	case ApprovalRejected:
		return a.Reject(at)
	default:
		return a, fmt.Errorf("decision %q: %w", status, errs.ErrInvalidInput)
	}
}
