package redis

import "strings"

const keyNamespace = "mandi"

// IdempotencyKey is where a replayable response for (scope, id) is stored.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey("idempotency", scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey("rate_limit", scope)
}

// LockKey names an entity or job lease.
func (c *Client) LockKey(scope, id string) string {
	return joinKey("lock", scope, id)
}

// joinKey prefixes the namespace and drops blank parts.
func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
