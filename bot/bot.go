// Package bot announces wheels in Discord and answers /wheel commands
package bot

import (
	"fmt"

	"spinwheel/events"
	"spinwheel/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token     string
	ChannelID string
}

type Bot struct {
	config       Config
	session      *discordgo.Session
	wheelService service.WheelService
	userService  service.UserService
	commands     []*discordgo.ApplicationCommand
}

func New(config Config, wheelService service.WheelService, userService service.UserService, eventBus *events.Bus) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	bot := &Bot{
		config:       config,
		session:      dg,
		wheelService: wheelService,
		userService:  userService,
	}

	dg.AddHandler(bot.handleCommands)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	if err := bot.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	NewAnnouncer(dg, config.ChannelID, userService).Attach(eventBus)

	log.WithField("channelID", config.ChannelID).Info("Discord announcer enabled")
	return bot, nil
}

func (b *Bot) Close() error {
	if b.session.State != nil && b.session.State.User != nil {
		for _, cmd := range b.commands {
			if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, "", cmd.ID); err != nil {
				log.WithError(err).Warnf("Failed to delete command %s", cmd.Name)
			}
		}
	}
	return b.session.Close()
}
