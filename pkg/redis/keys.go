package redis

import "strings"

const (
	defaultPrefix    = "sl"
	idempotencySpace = "idempotency"
	lockSpace        = "lock"
	keySeparator     = ":"
)

// Keyspace builds namespaced keys so several deployments can share one Redis.
type Keyspace struct {
	prefix string
}

func NewKeyspace(prefix string) Keyspace {
	prefix = strings.Trim(strings.TrimSpace(prefix), keySeparator)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return Keyspace{prefix: prefix}
}

// Key joins the prefix and the non-empty parts.
func (k Keyspace) Key(parts ...string) string {
	prefix := k.prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	out := []string{prefix}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, keySeparator)
}

// IdempotencyKey scopes request and event de-duplication keys.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.Key(idempotencySpace, scope, id)
}

// LockKey names a distributed lock.
func (k Keyspace) LockKey(name, env string) string {
	if strings.TrimSpace(env) == "" {
		env = "local"
	}
	return k.Key(lockSpace, name, env)
}
