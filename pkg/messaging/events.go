package messaging

const (
	EventsExchange     = "outreach.events"
	DeadLetterExchange = "outreach.dead-letter"
)

// Routing keys for events emitted by the automation core.
const (
	EventActionExecuted      = "action.executed"
	EventActionRateLimited   = "action.rate_limited"
	EventActionFailed        = "action.failed"
	EventAccountCooling      = "account.cooling"
	EventAccountBlocked      = "account.blocked"
	EventProxyBanned         = "proxy.banned"
	EventProxyCooling        = "proxy.cooling"
	EventProxyRotated        = "proxy.rotated"
	EventFollowBackMutual    = "account.follow_back"
	EventFollowTimeout       = "account.follow_timeout"
	EventConversationHandoff = "conversation.handoff"
	EventConversationEnded   = "conversation.ended"
)

// Routing keys for commands the core consumes.
const (
	EventContentSyncRequested = "content.sync_requested"
)

// Publisher is the narrow interface domain packages use to emit events.
// RabbitMQ satisfies it; NopPublisher is for embedding without a broker.
type Publisher interface {
	Publish(exchange, routingKey string, message interface{}) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(exchange, routingKey string, message interface{}) error {
	return nil
}
