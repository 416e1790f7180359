package enums

import (
	"fmt"
	"slices"
)

// ReviewStatus is the moderation state of a review.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

var validReviewStatuses = []ReviewStatus{
	ReviewStatusPending,
	ReviewStatusApproved,
	ReviewStatusRejected,
}

func (r ReviewStatus) String() string {
	return string(r)
}

func (r ReviewStatus) IsValid() bool {
	return slices.Contains(validReviewStatuses, r)
}

// ParseReviewStatus converts raw input into a ReviewStatus.
func ParseReviewStatus(value string) (ReviewStatus, error) {
	return parseEnum(validReviewStatuses, value, "review status")
}

// VerificationState is the tri-state outcome of a payment verification.
type VerificationState string

const (
	VerificationPending  VerificationState = "pending"
	VerificationVerified VerificationState = "verified"
	VerificationRejected VerificationState = "rejected"
)

// ParseVerificationState converts raw input into a VerificationState.
func ParseVerificationState(value string) (VerificationState, error) {
	switch VerificationState(value) {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return VerificationState(value), nil
	}
	return "", fmt.Errorf("invalid verification state %q", value)
}
