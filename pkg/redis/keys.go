package redis

import "strings"

// Namespace prefixes every key and pub/sub channel this service touches, so a
// shared Redis can host other tenants.
const Namespace = "hg"

// Key joins parts under Namespace, dropping blanks.
func Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(Namespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string { return Key("idempotency", scope, id) }

func (c *Client) AccessSessionKey(accessID string) string {
	return Key("session", "access", accessID)
}

func (c *Client) LockKey(name string) string { return Key("lock", name) }

func (c *Client) ChannelName(name string) string { return Key(name) }
