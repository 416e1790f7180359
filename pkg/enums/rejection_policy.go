package enums

import "fmt"

// RejectionPolicy decides what happens to an order when its payment proof
// is rejected.
type RejectionPolicy string

const (
	RejectionPolicyKeepStatus  RejectionPolicy = "keep_status"
	RejectionPolicyCancelOrder RejectionPolicy = "cancel_order"
)

func (r RejectionPolicy) String() string {
	return string(r)
}

// ParseRejectionPolicy converts raw input into a RejectionPolicy. Empty input
// selects keep_status.
func ParseRejectionPolicy(value string) (RejectionPolicy, error) {
	switch RejectionPolicy(value) {
	case "", RejectionPolicyKeepStatus:
		return RejectionPolicyKeepStatus, nil
	case RejectionPolicyCancelOrder:
		return RejectionPolicyCancelOrder, nil
	}
	return "", fmt.Errorf("invalid rejection policy %q", value)
}
