package redisstate

import "fmt"

const defaultKeyPrefix = "quiz:"

// keys builds every redis key and channel name under one prefix.
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return keys{prefix: prefix}
}

func (k keys) roomEvents(roomID string) string {
	return fmt.Sprintf("%sroom:%s:events", k.prefix, roomID)
}

func (k keys) revokedSession(sessionID string) string {
	return fmt.Sprintf("%ssession:revoked:%s", k.prefix, sessionID)
}

func (k keys) rateLimit(scope, subject string) string {
	return fmt.Sprintf("%sratelimit:%s:%s", k.prefix, scope, subject)
}
