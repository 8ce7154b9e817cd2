package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/deskstream/chatkit/pkg/model"
	"github.com/deskstream/chatkit/pkg/store"
)

// RestClient is the coordinator's view of the backend REST surface.
// Errors are passed through to callers untouched.
type RestClient interface {
	FetchPluginConfig(ctx context.Context, pluginID string) (model.Plugin, *model.Bot, error)
	FetchWelcomeScript(ctx context.Context, pluginID, key string) (model.Script, error)
	FetchChat(ctx context.Context, chatID string) (model.ChatSnapshot, error)
	CreateChat(ctx context.Context, pluginID string, openedAt time.Time) (model.Chat, model.Session, error)
}

// Welcome script keys, selected by the guest's anonymity flag.
const (
	scriptKeyWelcome      = "welcome"
	scriptKeyWelcomeGhost = "welcome_ghost"
)

// BootstrapNew drives an idless session through the info bootstrap:
// plugin config, then the welcome script keyed by the guest's ghost flag.
// Both results are published to the store only after both fetches
// succeed, plugin first. A failure at either step marks the info
// sub-state failed and propagates the error verbatim. If the guards say
// no fetch is needed (already fetched, id present, or a fetch in flight)
// the call is a silent no-op.
func (c *Coordinator) BootstrapNew(ctx context.Context) error {
	var (
		proceed  bool
		pluginID string
		ghost    bool
	)
	if !c.do(func() {
		if !c.needsInfo() {
			return
		}
		proceed = true
		c.infoState = StateLoading
		pluginID = c.ambient.PluginID()
		ghost = c.ambient.GuestGhost()
	}) {
		return ErrClosed
	}
	if !proceed {
		return nil
	}

	plugin, bot, err := c.rest.FetchPluginConfig(ctx, pluginID)
	if err != nil {
		c.infoFailed(err)
		return err
	}

	key := scriptKeyWelcome
	if ghost {
		key = scriptKeyWelcomeGhost
	}
	script, err := c.rest.FetchWelcomeScript(ctx, pluginID, key)
	if err != nil {
		c.infoFailed(err)
		return err
	}

	c.do(func() {
		c.didFetchInfo = true
		c.infoState = StateLoaded
		c.sink.Publish(store.PluginAcquired{Plugin: plugin, Bot: bot})
		c.sink.Publish(store.ScriptAcquired{Script: script})
		c.log.Debug().Str("plugin_id", plugin.ID).Str("script_key", key).Msg("info bootstrap done")
	})
	return nil
}

func (c *Coordinator) infoFailed(err error) {
	c.do(func() {
		c.didFetchInfo = false
		c.infoState = StateFailed
		c.log.Warn().Err(err).Msg("info bootstrap failed")
	})
}

// LoadChat fetches the existing chat resource by the session's id and
// publishes the snapshot to the store. A call while a fetch is already in
// flight is a silent no-op; the in-flight call owns the outcome.
func (c *Coordinator) LoadChat(ctx context.Context) error {
	var (
		proceed bool
		chatID  string
	)
	if !c.do(func() {
		if c.chatState == StateLoading {
			return
		}
		proceed = true
		chatID = c.chatID
		c.chatState = StateLoading
	}) {
		return ErrClosed
	}
	if !proceed {
		return nil
	}
	if chatID == "" {
		c.do(func() { c.chatState = StateFailed })
		return errors.New("load chat: no chat id")
	}

	snapshot, err := c.rest.FetchChat(ctx, chatID)
	if err != nil {
		c.do(func() {
			c.didChatLoad = false
			c.chatState = StateFailed
			c.log.Warn().Err(err).Msg("chat load failed")
		})
		return err
	}

	c.do(func() {
		c.didChatLoad = true
		c.chatState = StateLoaded
		c.sink.Publish(store.ChatAcquired{Snapshot: snapshot})
	})
	return nil
}

// CreateChat materializes a brand-new chat. If the session already holds
// an id the call short-circuits and returns it without a network call.
// On success the coordinator adopts the returned id, publishes the chat
// and its session record, and joins the socket room. On failure it
// returns ErrChatCreate: callers can detect failure but not distinguish
// its cause.
func (c *Coordinator) CreateChat(ctx context.Context, openedAt time.Time) (string, error) {
	var (
		existing string
		pluginID string
	)
	if !c.do(func() {
		existing = c.chatID
		if existing == "" {
			pluginID = c.ambient.PluginID()
			c.chatState = StateLoading
		}
	}) {
		return "", ErrClosed
	}
	if existing != "" {
		return existing, nil
	}

	created, session, err := c.rest.CreateChat(ctx, pluginID, openedAt)
	if err != nil {
		c.do(func() {
			c.didChatLoad = false
			c.chatState = StateFailed
			c.log.Warn().Err(err).Msg("chat create failed")
		})
		return "", ErrChatCreate
	}

	var id string
	if !c.do(func() {
		if c.chatID != "" {
			// A concurrent load adopted an id while the create was in
			// flight; keep it and skip the duplicate publish.
			id = c.chatID
			return
		}
		c.chatID = created.ID
		c.didChatLoad = true
		c.chatState = StateLoaded
		c.sink.Publish(store.ChatAcquired{Snapshot: model.ChatSnapshot{Chat: created}})
		c.sink.Publish(store.SessionAcquired{Session: session})
		c.join(created.ID)
		id = created.ID
	}) {
		return "", ErrClosed
	}
	return id, nil
}

// join runs on the owner loop. Fire-and-forget: no acknowledgement is
// observed, a write error only means the room is not joined yet.
func (c *Coordinator) join(chatID string) {
	if c.socket == nil {
		c.log.Debug().Msg("no socket commander, skipping join")
		return
	}
	if err := c.socket.Join(chatID); err != nil {
		c.log.Warn().Err(err).Msg("socket join failed")
		return
	}
	c.joined = true
}
