package chat

import "github.com/pkg/errors"

// ErrChatCreate is the single opaque error reported when chat creation
// fails. Callers can detect failure but not distinguish its cause; the
// underlying error is logged, not returned.
var ErrChatCreate = errors.New("chat create failed")

// ErrClosed is returned by operations invoked after the coordinator has
// been closed.
var ErrClosed = errors.New("coordinator closed")
