package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spinwheel/models"
	"spinwheel/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

var wheelCommand = &discordgo.ApplicationCommand{
	Name:        "wheel",
	Description: "Look at spin wheels",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "show",
			Description: "Show a wheel and its players",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "id",
					Description: "Wheel ID",
					Required:    true,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "list",
			Description: "List open and spinning wheels",
		},
	},
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", wheelCommand)
	if err != nil {
		return fmt.Errorf("cannot create '%s' command: %w", wheelCommand.Name, err)
	}
	b.commands = append(b.commands, created)
	return nil
}

// handleCommands routes slash commands to their handlers
func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != wheelCommand.Name || len(data.Options) == 0 {
		return
	}

	ctx := context.Background()
	sub := data.Options[0]
	switch sub.Name {
	case "show":
		b.handleShow(ctx, s, i, sub.Options)
	case "list":
		b.handleList(ctx, s, i)
	}
}

func (b *Bot) handleShow(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	var wheelID int64
	for _, opt := range options {
		if opt.Name == "id" {
			wheelID = opt.IntValue()
		}
	}

	detail, err := b.wheelService.GetWheel(ctx, wheelID)
	if errors.Is(err, service.ErrNotFound) {
		respondWithError(s, i, fmt.Sprintf("Wheel #%d does not exist.", wheelID))
		return
	}
	if err != nil {
		log.Errorf("Error getting wheel %d: %v", wheelID, err)
		respondWithError(s, i, "Unable to load the wheel. Please try again.")
		return
	}
	respondWithEmbed(s, i, wheelDetailEmbed(detail))
}

func (b *Bot) handleList(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	var lines []string
	for _, status := range []models.WheelStatus{models.WheelStatusPending, models.WheelStatusRunning} {
		wheels, err := b.wheelService.ListWheels(ctx, &status, 10)
		if err != nil {
			log.Errorf("Error listing %s wheels: %v", status, err)
			respondWithError(s, i, "Unable to list wheels. Please try again.")
			return
		}
		for _, w := range wheels {
			lines = append(lines, wheelListLine(w))
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎡 Active wheels",
		Description: "*Nothing spinning right now*",
		Color:       colorGold,
	}
	if len(lines) > 0 {
		embed.Description = strings.Join(lines, "\n")
	}
	respondWithEmbed(s, i, embed)
}

func wheelListLine(w *models.Wheel) string {
	line := fmt.Sprintf("**#%d** %s, entry %s", w.ID, strings.ToLower(string(w.Status)), FormatBalance(w.EntryFee))
	if w.IsPending() && w.AutoStartAt != nil {
		line += ", starts " + FormatDiscordTimestamp(*w.AutoStartAt, "R")
	}
	return line
}
