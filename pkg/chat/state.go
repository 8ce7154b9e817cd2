package chat

// ResourceState is the coarse lifecycle of one independently tracked
// sub-resource (info, chat). Failed states may be retried.
type ResourceState int

const (
	StateNotStarted ResourceState = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s ResourceState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// needsInfo reports whether the coordinator should fetch plugin info.
// Only true for an idless session with no successful fetch and no fetch
// in flight, which keeps re-entrant triggers idempotent.
func (c *Coordinator) needsInfo() bool {
	return !c.didFetchInfo && c.chatID == "" && c.infoState != StateLoading
}

// needsChat reports whether the coordinator should fetch the chat.
func (c *Coordinator) needsChat() bool {
	return !c.didChatLoad && c.chatID != "" && c.chatState != StateLoading
}

// ready reports whether live interaction (typing, sending) is permitted.
func (c *Coordinator) ready() bool {
	return c.chatState == StateLoaded && c.joined
}
