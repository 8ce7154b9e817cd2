// chat-demo runs the full widget pipeline against a backend (see
// cmd/supportd): bootstrap a new session, create a chat, join its room,
// send a message, and print delegate notifications as they land.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deskstream/chatkit/pkg/api"
	"github.com/deskstream/chatkit/pkg/bus"
	"github.com/deskstream/chatkit/pkg/chat"
	"github.com/deskstream/chatkit/pkg/config"
	"github.com/deskstream/chatkit/pkg/model"
	"github.com/deskstream/chatkit/pkg/socket"
	"github.com/deskstream/chatkit/pkg/store"
)

var (
	flagConfig  string
	flagMessage string
)

// logDelegate prints coordinator notifications instead of rendering them.
type logDelegate struct {
	log zerolog.Logger
}

func (d *logDelegate) OnMessage(msg model.Message) {
	d.log.Info().Str("from", msg.PersonID).Str("body", msg.Body).Msg("message")
}

func (d *logDelegate) OnTyping(participants []model.Participant, animated bool) {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.Name)
	}
	d.log.Info().Str("typing", strings.Join(names, ", ")).Bool("animated", animated).Msg("typing changed")
}

var rootCmd = &cobra.Command{
	Use:   "chat-demo",
	Short: "Run the support-chat coordinator end to end against a backend",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "parse log level")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(store.State{
		Plugin: model.Plugin{ID: cfg.PluginID},
		Guest: model.Guest{
			ID:    uuid.NewString(),
			Name:  cfg.GuestName,
			Ghost: cfg.GuestGhost,
		},
	})

	b, err := bus.New(cfg.Redis)
	if err != nil {
		return errors.Wrap(err, "build event bus")
	}
	defer func() { _ = b.Close() }()
	if cfg.Redis.Enabled {
		if err := bus.EnsureGroupAtTail(ctx, cfg.Redis.Addr, bus.EventsTopic, cfg.Redis.Group); err != nil {
			return errors.Wrap(err, "ensure consumer group")
		}
	}

	sock, err := socket.Dial(ctx, cfg.SocketURL, b.Publisher, bus.EventsTopic)
	if err != nil {
		return err
	}
	defer func() { _ = sock.Close() }()

	rest, err := api.NewClient(cfg.BaseURL)
	if err != nil {
		return err
	}

	coord, err := chat.NewCoordinator(chat.Config{
		Rest:          rest,
		Socket:        sock,
		Ambient:       st,
		Sink:          st,
		Delegate:      &logDelegate{log: log.With().Str("component", "demo").Logger()},
		TypingTimeout: cfg.TypingTimeout,
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	dispatcher := chat.NewDispatcher(coord, b.Subscriber, bus.EventsTopic)
	if err := dispatcher.Start(ctx); err != nil {
		return errors.Wrap(err, "start dispatcher")
	}
	defer dispatcher.Stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return sock.Run(egCtx) })
	eg.Go(func() error {
		defer stop()
		return runSession(egCtx, coord, sock)
	})
	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSession(ctx context.Context, coord *chat.Coordinator, sock *socket.Client) error {
	if coord.NeedsInfo() {
		if err := coord.BootstrapNew(ctx); err != nil {
			return errors.Wrap(err, "bootstrap")
		}
		log.Info().Msg("info bootstrap complete")
	}

	chatID, err := coord.CreateChat(ctx, time.Now())
	if err != nil {
		return err
	}
	log.Info().Str("chat_id", chatID).Bool("ready", coord.Ready()).Msg("chat created")

	coord.SendTyping(false)
	if err := sock.SendMessage(chatID, flagMessage); err != nil {
		return err
	}
	coord.SendTyping(true)

	// Leave the session running so socket events keep flowing in.
	<-ctx.Done()
	return ctx.Err()
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to YAML config")
	rootCmd.Flags().StringVar(&flagMessage, "message", "Hello, I need a hand with my order.", "message to send once the chat is ready")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("chat-demo failed")
	}
}
