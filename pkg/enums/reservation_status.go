package enums

import "fmt"

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationConsumed ReservationStatus = "CONSUMED"
	ReservationReleased ReservationStatus = "RELEASED"
)

var validReservationStatuses = []ReservationStatus{
	ReservationActive,
	ReservationConsumed,
	ReservationReleased,
}

func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
