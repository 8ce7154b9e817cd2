// Package chat implements the session coordinator for one support
// conversation: it multiplexes socket events against REST-fetched state,
// tracks who is typing, and sequences the bootstrap of a brand-new chat.
//
// Concurrency model: all coordinator state lives on a single owner
// goroutine. Socket events, REST completions, and timer expiries are
// posted onto that loop as closures, so state transitions never need a
// lock and completions that race a teardown are dropped at the post.
package chat

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskstream/chatkit/pkg/model"
	"github.com/deskstream/chatkit/pkg/store"
)

// Delegate receives the coordinator's notifications, delivered
// synchronously on the owner loop immediately after each state change.
// Implementations must not call back into the coordinator from inside a
// notification; hand off to another goroutine instead.
type Delegate interface {
	OnMessage(msg model.Message)
	OnTyping(participants []model.Participant, animated bool)
}

// ConfigReader provides the ambient configuration the coordinator reads
// at call time.
type ConfigReader interface {
	PluginID() string
	GuestGhost() bool
	Participant(id string, kind model.ParticipantKind) (model.Participant, bool)
}

// FactSink is the coordinator's write-only view of the global store.
type FactSink interface {
	Publish(fact store.Fact)
}

// SocketCommander issues fire-and-forget commands on the live socket.
type SocketCommander interface {
	Join(chatID string) error
	SendTyping(chatID string, stop bool) error
}

// Config assembles the coordinator's collaborators.
type Config struct {
	// ChatID is empty for a brand-new, not-yet-created chat.
	ChatID   string
	Rest     RestClient
	Socket   SocketCommander
	Ambient  ConfigReader
	Sink     FactSink
	Delegate Delegate
	// TypingTimeout defaults to DefaultTypingTimeout when zero.
	TypingTimeout time.Duration
}

// Coordinator owns the lifecycle of a single conversation.
type Coordinator struct {
	rest     RestClient
	socket   SocketCommander
	ambient  ConfigReader
	sink     FactSink
	delegate Delegate

	chatID       string
	kind         model.SessionKind
	didFetchInfo bool
	didChatLoad  bool
	infoState    ResourceState
	chatState    ResourceState
	joined       bool

	typing *typingTracker
	log    zerolog.Logger

	calls     chan func()
	closed    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewCoordinator builds a coordinator and starts its owner loop.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Rest == nil {
		return nil, errors.New("rest client is required")
	}
	if cfg.Ambient == nil {
		return nil, errors.New("ambient config reader is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("fact sink is required")
	}
	c := &Coordinator{
		rest:     cfg.Rest,
		socket:   cfg.Socket,
		ambient:  cfg.Ambient,
		sink:     cfg.Sink,
		delegate: cfg.Delegate,
		chatID:   cfg.ChatID,
		kind:     model.SessionUserChat,
		log:      log.With().Str("component", "chat").Str("chat_id", cfg.ChatID).Logger(),
		calls:    make(chan func()),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	registry := newTimerRegistry(c.post, c.typingExpired)
	c.typing = newTypingTracker(registry, cfg.TypingTimeout)
	go c.loop()
	return c, nil
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.calls:
			fn()
		case <-c.closed:
			return
		}
	}
}

// post schedules fn on the owner loop. Returns false once the coordinator
// is closed, which is how late completions get dropped.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.calls <- fn:
		return true
	case <-c.closed:
		return false
	}
}

// do runs fn on the owner loop and waits for it to finish.
func (c *Coordinator) do(fn func()) bool {
	done := make(chan struct{})
	if !c.post(func() {
		fn()
		close(done)
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-c.closed:
		return false
	}
}

// Close stops the owner loop and cancels every outstanding typing timer.
// Completions arriving afterwards are silently ignored.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		<-c.loopDone
		// The loop is stopped; it is safe to touch state directly.
		c.typing.timers.cancelAll()
		c.log.Debug().Msg("coordinator closed")
	})
}

// ChatID returns the current chat id; empty means not yet created.
func (c *Coordinator) ChatID() string {
	var id string
	c.do(func() { id = c.chatID })
	return id
}

// NeedsInfo reports whether a plugin-info fetch should be issued.
func (c *Coordinator) NeedsInfo() bool {
	var v bool
	c.do(func() { v = c.needsInfo() })
	return v
}

// NeedsChat reports whether a chat fetch should be issued.
func (c *Coordinator) NeedsChat() bool {
	var v bool
	c.do(func() { v = c.needsChat() })
	return v
}

// Ready reports whether live interaction is permitted.
func (c *Coordinator) Ready() bool {
	var v bool
	c.do(func() { v = c.ready() })
	return v
}

// InfoState returns the info sub-state.
func (c *Coordinator) InfoState() ResourceState {
	var v ResourceState
	c.do(func() { v = c.infoState })
	return v
}

// ChatState returns the chat sub-state.
func (c *Coordinator) ChatState() ResourceState {
	var v ResourceState
	c.do(func() { v = c.chatState })
	return v
}

// Typers returns the ordered list of currently-typing participants.
func (c *Coordinator) Typers() []model.Participant {
	var out []model.Participant
	c.do(func() { out = c.typing.snapshot() })
	return out
}

// SendTyping forwards the guest's own typing signal over the socket.
func (c *Coordinator) SendTyping(stop bool) {
	var id string
	if !c.do(func() { id = c.chatID }) {
		return
	}
	if c.socket == nil || id == "" {
		return
	}
	if err := c.socket.SendTyping(id, stop); err != nil {
		c.log.Warn().Err(err).Msg("send typing failed")
	}
}

// Reset cancels all typing timers, clears presence, and notifies the
// delegate with the empty set. Used when switching chats.
func (c *Coordinator) Reset() {
	c.post(func() {
		c.typing.reset()
		c.notifyTyping()
	})
}

// HandleForeground is the one application-lifecycle signal the
// coordinator observes. An idless session forgets the fetched info so the
// next bootstrap re-attempts; chat state is always refreshed on resume.
func (c *Coordinator) HandleForeground() {
	c.post(func() {
		if c.chatID == "" {
			c.didFetchInfo = false
		}
		c.didChatLoad = false
	})
}

// typingExpired runs on the owner loop when a participant's timer fires.
// Same removal effect as an explicit stop; guards against a lost stop
// event.
func (c *Coordinator) typingExpired(key string) {
	if c.typing.onExpire(key) {
		c.log.Debug().Str("participant", key).Msg("typing expired")
		c.notifyTyping()
	}
}

// notifyTyping forwards the current presence snapshot to the delegate.
func (c *Coordinator) notifyTyping() {
	if c.delegate == nil {
		return
	}
	c.delegate.OnTyping(c.typing.snapshot(), c.typing.animate)
}

// handleMessage runs on the owner loop. A message from a typing
// participant clears their typing entry before the message notification
// is delivered.
func (c *Coordinator) handleMessage(msg model.Message) {
	if msg.ChatID != "" && c.chatID != "" && msg.ChatID != c.chatID {
		c.log.Debug().Str("event_chat_id", msg.ChatID).Msg("skipping message for other chat")
		return
	}
	if c.typing.onStop(msg.PersonID, msg.PersonKind) {
		c.notifyTyping()
	}
	if c.delegate != nil {
		c.delegate.OnMessage(msg)
	}
}

// handleTyping runs on the owner loop. Unrecognized action tags are
// ignored.
func (c *Coordinator) handleTyping(chatID string, tp model.TypingPayload) {
	if chatID != "" && c.chatID != "" && chatID != c.chatID {
		c.log.Debug().Str("event_chat_id", chatID).Msg("skipping typing event for other chat")
		return
	}
	switch tp.Action {
	case model.TypingStop:
		c.typing.onStop(tp.PersonID, tp.PersonKind)
	case model.TypingStart:
		// A start for a participant the roster cannot resolve leaves the
		// set untouched but still emits the snapshot, like any other
		// recognized typing event.
		if p, ok := c.ambient.Participant(tp.PersonID, tp.PersonKind); ok {
			c.typing.onStart(p)
		} else {
			c.log.Debug().Str("person_id", tp.PersonID).Str("person_kind", string(tp.PersonKind)).Msg("typing start for unknown participant")
		}
	default:
		c.log.Debug().Str("action", tp.Action).Msg("ignoring unrecognized typing action")
		return
	}
	c.notifyTyping()
}
