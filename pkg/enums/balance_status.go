package enums

import "fmt"

// BalanceStatus classifies a stock balance by its available quantity.
type BalanceStatus string

const (
	BalanceInStock    BalanceStatus = "IN_STOCK"
	BalanceLowStock   BalanceStatus = "LOW_STOCK"
	BalanceOutOfStock BalanceStatus = "OUT_OF_STOCK"
)

var validBalanceStatuses = []BalanceStatus{
	BalanceInStock,
	BalanceLowStock,
	BalanceOutOfStock,
}

func (s BalanceStatus) String() string {
	return string(s)
}

func (s BalanceStatus) IsValid() bool {
	for _, candidate := range validBalanceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseBalanceStatus(value string) (BalanceStatus, error) {
	for _, candidate := range validBalanceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance status %q", value)
}
