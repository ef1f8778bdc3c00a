package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/greenroomhq/greenroom/internal/app"
	"github.com/greenroomhq/greenroom/internal/session"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

// interviewCommand is the single /interview slash command with its
// subcommands. The option set stays flat on purpose: everything stateful
// lives in the room, not in the command arguments.
func interviewCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "interview",
		Description: "Practise a guided interview in your voice channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start a practice interview in your current voice channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "job_description",
						Description: "Role context used to adapt questions and judge relevance",
						Required:    false,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "End the current practice interview",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "retry",
				Description: "Answer the current question again",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "next",
				Description: "Move on to the next question",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show where the current session stands",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "history",
				Description: "Show your recent practice sessions",
			},
		},
	}
}

func (b *Bot) registerInterviewCommand() {
	cmd := interviewCommand()
	b.router.RegisterCommand("interview/start", cmd, b.handleStart)
	b.router.RegisterHandler("interview/stop", b.handleStop)
	b.router.RegisterHandler("interview/retry", b.handleRetry)
	b.router.RegisterHandler("interview/next", b.handleNext)
	b.router.RegisterHandler("interview/status", b.handleStatus)
	b.router.RegisterHandler("interview/history", b.handleHistory)

	// Feedback messages carry Retry / Next buttons; they behave exactly like
	// the subcommands.
	b.router.RegisterComponent(componentRetry, b.handleRetry)
	b.router.RegisterComponent(componentNext, b.handleNext)
}

// Component custom IDs for the feedback message buttons.
const (
	componentRetry = "interview_retry"
	componentNext  = "interview_next"
)

// feedbackButtons is the action row attached to feedback messages.
func feedbackButtons() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Retry", Style: discordgo.SecondaryButton, CustomID: componentRetry},
				discordgo.Button{Label: "Next", Style: discordgo.PrimaryButton, CustomID: componentNext},
			},
		},
	}
}

// interactionUserID extracts the invoking member's user ID.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// subcommandString returns the named string option of the first subcommand.
func subcommandString(i *discordgo.InteractionCreate, name string) string {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return ""
	}
	for _, opt := range data.Options[0].Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func (b *Bot) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)
	if userID == "" {
		RespondEphemeral(s, i, "This command only works inside a server.")
		return
	}

	vs, err := s.State.VoiceState(b.guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		RespondEphemeral(s, i, "Join a voice channel first, then run `/interview start`.")
		return
	}

	// Connecting voice and starting the session can take a moment.
	DeferReply(s, i)

	ctx := context.Background()
	textChannelID := i.ChannelID
	notify := func(content string) {
		if _, err := s.ChannelMessageSend(textChannelID, content); err != nil {
			slog.Warn("post message failed", "channel_id", textChannelID, "err", err)
		}
	}

	// The redialler keeps the room's voice link alive across drops; the
	// controller holds the interview state, so a recovered link resumes the
	// session in place.
	redial := session.NewReconnector(session.ReconnectorConfig{
		Platform:  b.platform,
		ChannelID: vs.ChannelID,
		OnReconnect: func(audio.Connection) {
			notify("Voice connection restored — picking up where we left off.")
		},
		OnGiveUp: func() {
			notify("Lost the voice connection and couldn't get it back. Rejoin voice and `/interview start` again, or `/interview stop` to end.")
		},
	})
	if _, err := redial.Connect(ctx); err != nil {
		slog.Error("voice connect failed", "channel_id", vs.ChannelID, "err", err)
		FollowUp(s, i, "Couldn't join your voice channel.")
		return
	}
	redial.Monitor(ctx)

	// A drop shows up as the bot's own voice state losing its channel.
	removeWatch := s.AddHandler(func(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
		if vsu.GuildID == b.guildID && vsu.UserID == s.State.User.ID && vsu.ChannelID == "" {
			redial.NotifyDisconnect()
		}
	})

	b.mu.RLock()
	deps := b.deps
	voiceID := b.voiceID
	b.mu.RUnlock()

	req := app.OpenRequest{
		UserID:         userID,
		ChannelID:      vs.ChannelID,
		JobDescription: subcommandString(i, "job_description"),
		Cleanup: func() error {
			removeWatch()
			return redial.Stop()
		},
	}
	if deps.TTS != nil {
		req.Player = newQuestionPlayer(redial, deps.TTS, voiceID)
	}

	room, err := deps.Rooms.Open(ctx, req)
	if err != nil {
		if errors.Is(err, app.ErrRoomExists) {
			FollowUp(s, i, "You already have an interview running. Use `/interview stop` to end it first.")
			return
		}
		slog.Error("open interview room failed", "user_id", userID, "err", err)
		FollowUp(s, i, "Couldn't start the interview.")
		return
	}

	loop := &roomLoop{
		bot:           b,
		room:          room,
		conns:         redial,
		session:       s,
		textChannelID: textChannelID,
		userID:        userID,
	}
	go loop.run()

	snap := room.Controller.Snapshot()
	FollowUpEmbed(s, i, questionEmbed(snap.Index, snap.Questions.Len(), snap.CurrentQuestion()))
}

func (b *Bot) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)
	b.mu.RLock()
	rooms := b.deps.Rooms
	b.mu.RUnlock()

	room, err := rooms.Get(userID)
	if err != nil {
		RespondEphemeral(s, i, "You don't have an interview running.")
		return
	}

	ctx := context.Background()
	if room.Controller.Snapshot().State == interview.StateComplete {
		b.finishRoom(s, i, userID)
		return
	}

	if err := rooms.Close(ctx, userID); err != nil {
		RespondError(s, i, err)
		return
	}
	RespondEphemeral(s, i, "Interview ended. Nothing was archived — only completed sessions are.")
}

func (b *Bot) handleRetry(s *discordgo.Session, i *discordgo.InteractionCreate) {
	room, ok := b.userRoom(s, i)
	if !ok {
		return
	}
	if err := room.Controller.Retry(context.Background()); err != nil {
		RespondEphemeral(s, i, "Retry is only available right after feedback.")
		return
	}
	RespondEphemeral(s, i, "Let's take that one again — answer when the question finishes.")
}

func (b *Bot) handleNext(s *discordgo.Session, i *discordgo.InteractionCreate) {
	room, ok := b.userRoom(s, i)
	if !ok {
		return
	}
	if err := room.Controller.Next(context.Background()); err != nil {
		RespondEphemeral(s, i, "Next is only available after feedback on the current question.")
		return
	}

	snap := room.Controller.Snapshot()
	if snap.State == interview.StateComplete {
		b.finishRoom(s, i, interactionUserID(i))
		return
	}
	RespondEmbed(s, i, questionEmbed(snap.Index, snap.Questions.Len(), snap.CurrentQuestion()))
}

func (b *Bot) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	room, ok := b.userRoom(s, i)
	if !ok {
		return
	}
	RespondEmbed(s, i, statusEmbed(room.Controller.Snapshot()))
}

func (b *Bot) handleHistory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.mu.RLock()
	archive := b.deps.Archive
	b.mu.RUnlock()

	if archive == nil {
		RespondEphemeral(s, i, "Practice history is not configured on this server.")
		return
	}

	recs, err := archive.ListSessions(context.Background(), interactionUserID(i), 5)
	if err != nil {
		slog.Warn("history lookup failed", "err", err)
		RespondEphemeral(s, i, "Couldn't load your practice history.")
		return
	}
	if len(recs) == 0 {
		RespondEphemeral(s, i, "No completed sessions yet — finish one with `/interview start`.")
		return
	}
	RespondEmbed(s, i, historyEmbed(recs))
}

// finishRoom archives the completed session and replies with the report.
func (b *Bot) finishRoom(s *discordgo.Session, i *discordgo.InteractionCreate, userID string) {
	b.mu.RLock()
	rooms := b.deps.Rooms
	b.mu.RUnlock()

	report, err := rooms.Finish(context.Background(), userID)
	if err != nil {
		RespondError(s, i, fmt.Errorf("finish session: %w", err))
		return
	}
	RespondEmbed(s, i, reportEmbed(report))
}

// userRoom resolves the invoking member's open room, replying with a hint
// when there is none.
func (b *Bot) userRoom(s *discordgo.Session, i *discordgo.InteractionCreate) (*app.Room, bool) {
	b.mu.RLock()
	rooms := b.deps.Rooms
	b.mu.RUnlock()

	room, err := rooms.Get(interactionUserID(i))
	if err != nil {
		RespondEphemeral(s, i, "You don't have an interview running. Start one with `/interview start`.")
		return nil, false
	}
	return room, true
}
