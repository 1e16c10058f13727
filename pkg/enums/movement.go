package enums

import "fmt"

// MovementType is the direction of a stock movement.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementTransfer   MovementType = "TRANSFER"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

var validMovementTypes = []MovementType{
	MovementIn,
	MovementOut,
	MovementTransfer,
	MovementAdjustment,
}

func (m MovementType) String() string {
	return string(m)
}

func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}

// ReferenceType is the kind of business transaction behind a movement.
type ReferenceType string

const (
	ReferencePurchase   ReferenceType = "PURCHASE"
	ReferenceSales      ReferenceType = "SALES"
	ReferenceTransfer   ReferenceType = "TRANSFER"
	ReferenceAdjustment ReferenceType = "ADJUSTMENT"
	ReferenceReturn     ReferenceType = "RETURN"
)

var validReferenceTypes = []ReferenceType{
	ReferencePurchase,
	ReferenceSales,
	ReferenceTransfer,
	ReferenceAdjustment,
	ReferenceReturn,
}

func (r ReferenceType) String() string {
	return string(r)
}

func (r ReferenceType) IsValid() bool {
	for _, candidate := range validReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseReferenceType(value string) (ReferenceType, error) {
	for _, candidate := range validReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reference type %q", value)
}
