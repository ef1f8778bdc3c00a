// Package discord provides the Discord voice surface for greenroom. It owns
// the discordgo.Session lifecycle, routes the /interview slash command to its
// handlers, and runs the per-room voice loop: read the current question aloud
// over TTS, record the member's answer, and post feedback embeds when the
// analysis lands.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/greenroomhq/greenroom/internal/app"
	"github.com/greenroomhq/greenroom/internal/question"
	"github.com/greenroomhq/greenroom/pkg/audio"
	discordaudio "github.com/greenroomhq/greenroom/pkg/audio/discord"
	"github.com/greenroomhq/greenroom/pkg/history"
	"github.com/greenroomhq/greenroom/pkg/provider/tts"
	"github.com/greenroomhq/greenroom/pkg/provider/vad"
	"github.com/greenroomhq/greenroom/pkg/provider/vad/energy"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID restricts slash-command registration to one guild.
	// Empty registers the commands globally.
	GuildID string

	// VoiceID selects the TTS voice used to read questions aloud.
	VoiceID string
}

// Deps are the application collaborators the bot drives. They become
// available only after the application is constructed, which itself needs the
// bot's audio platform, so the bot is built in two phases: [New] then [Bind].
type Deps struct {
	Rooms     *app.RoomManager
	Questions *question.Manager
	TTS       tts.Provider
	VAD       vad.Engine
	Archive   history.Archive
}

// Bot owns the Discord gateway connection and the /interview surface.
type Bot struct {
	mu       sync.RWMutex
	session  *discordgo.Session
	platform *discordaudio.Platform
	router   *CommandRouter
	deps     Deps
	voiceID  string
	guildID  string
	commands []*discordgo.ApplicationCommand

	closeOnce sync.Once
}

// New creates a Bot, connects to the Discord gateway, and registers the
// interaction handler. Command handlers are inert until [Bot.Bind] is called.
func New(cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session, cfg.GuildID),
		router:   NewCommandRouter(),
		voiceID:  cfg.VoiceID,
		guildID:  cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Bind attaches the application collaborators and registers the /interview
// command handlers. Must be called before Run.
func (b *Bot) Bind(deps Deps) {
	// Capture endpointing needs a VAD engine; the energy engine is the
	// dependency-free default.
	if deps.VAD == nil {
		deps.VAD = energy.New()
	}
	b.mu.Lock()
	b.deps = deps
	b.mu.Unlock()
	b.registerInterviewCommand()
}

// Platform returns the audio.Platform backed by this bot's gateway session.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// GuildID returns the guild commands are registered against.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Router returns the command router. Exposed for tests.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Run registers the slash commands with the Discord API and blocks until ctx
// is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close unregisters commands and disconnects from the gateway. Any rooms still
// open are released by the application's own shutdown path.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
