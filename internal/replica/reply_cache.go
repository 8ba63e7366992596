package replica

import "neobft/internal/wire"

// ReplyCache holds, per client, the most recently committed reply: an
// at-most-once memoization. The cached request number is non-decreasing.
type ReplyCache struct {
	byClient map[uint32]wire.Reply
}

func newReplyCache() *ReplyCache {
	return &ReplyCache{byClient: make(map[uint32]wire.Reply)}
}

// Lookup returns the cached reply for clientID, if any.
func (c *ReplyCache) Lookup(clientID uint32) (wire.Reply, bool) {
	r, ok := c.byClient[clientID]
	return r, ok
}

// Store records reply as the latest for clientID.
func (c *ReplyCache) Store(clientID uint32, reply wire.Reply) {
	c.byClient[clientID] = reply
}
