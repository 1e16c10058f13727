package enums

import "fmt"

// ActorRole is the role claim carried by access tokens.
type ActorRole string

const (
	ActorRoleClerk      ActorRole = "clerk"
	ActorRoleSupervisor ActorRole = "supervisor"
	ActorRoleSystem     ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleClerk,
	ActorRoleSupervisor,
	ActorRoleSystem,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
