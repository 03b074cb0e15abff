package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"fundwatch/internal/config"
	"fundwatch/internal/service"
)

// Bot exposes the command surface as Discord slash commands and keeps the
// gateway session alive for notification delivery.
type Bot struct {
	session    *discordgo.Session
	svc        *service.Service
	guildID    string
	logger     zerolog.Logger
	registered []*discordgo.ApplicationCommand
}

// NewSession builds the shared gateway session for the bot and the notifier.
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord.token not configured")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return session, nil
}

// New attaches the command surface to an existing session. The session is not
// opened yet.
func New(session *discordgo.Session, guildID string, svc *service.Service, logger zerolog.Logger) *Bot {
	b := &Bot{
		session: session,
		svc:     svc,
		guildID: guildID,
		logger:  logger.With().Str("component", "bot").Logger(),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b
}

// Start opens the gateway and (re)registers the slash commands. With a guild
// ID the commands are scoped to that guild and appear immediately; without
// one they are registered globally and Discord propagates them slowly.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(
		b.session.State.User.ID, b.guildID, commandDefinitions(), discordgo.WithContext(ctx))
	if err != nil {
		b.session.Close()
		return fmt.Errorf("register slash commands: %w", err)
	}
	b.registered = registered

	b.logger.Info().
		Int("commands", len(registered)).
		Str("guild_id", b.guildID).
		Msg("slash commands registered")
	return nil
}

// Stop removes the registered commands and closes the gateway session.
func (b *Bot) Stop() error {
	for _, cmd := range b.registered {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.guildID, cmd.ID); err != nil {
			b.logger.Warn().Err(err).Str("command", cmd.Name).Msg("failed to delete slash command")
		}
	}
	b.registered = nil
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().Str("user", r.User.Username).Msg("discord gateway ready")
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	resp := b.Handle(context.Background(), i.Interaction)
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		b.logger.Error().Err(err).
			Str("command", i.ApplicationCommandData().Name).
			Msg("failed to respond to interaction")
	}
}
