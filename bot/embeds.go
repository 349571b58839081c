package bot

import (
	"fmt"
	"strings"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/bwmarrin/discordgo"
)

const (
	colorGold   = 0xFFD700
	colorBlue   = 0x3498DB
	colorPurple = 0x9B59B6
	colorRed    = 0xE74C3C
)

const timestampLayout = "2006-01-02T15:04:05Z07:00"

func wheelFooter(wheelID int64) *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Wheel ID: %d", wheelID)}
}

// wheelCreatedEmbed announces a wheel that is open for joins
func wheelCreatedEmbed(wheel *models.Wheel, hostName string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🎡 A new wheel is open",
		Description: fmt.Sprintf("Hosted by **%s**. Entry fee: **%s coins**", hostName, FormatBalance(wheel.EntryFee)),
		Color:       colorGold,
		Footer:      wheelFooter(wheel.ID),
		Timestamp:   wheel.CreatedAt.Format(timestampLayout),
	}
	if wheel.AutoStartAt != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Starts",
			Value:  FormatDiscordTimestamp(*wheel.AutoStartAt, "R"),
			Inline: true,
		})
	}
	if wheel.MaxPlayers != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Seats",
			Value:  fmt.Sprintf("%d", *wheel.MaxPlayers),
			Inline: true,
		})
	}
	return embed
}

func wheelStartedEmbed(e events.WheelStartedEvent) *discordgo.MessageEmbed {
	how := "The deadline passed"
	if e.Manual {
		how = "The host started it"
	}
	return &discordgo.MessageEmbed{
		Title:       "🌀 The wheel is spinning",
		Description: fmt.Sprintf("%s with **%d players**. One player drops out every spin.", how, e.PlayerCount),
		Color:       colorBlue,
		Footer:      wheelFooter(e.WheelID),
	}
}

func wheelFinishedEmbed(e events.WheelFinishedEvent, winnerName string) *discordgo.MessageEmbed {
	s := e.Settlement
	embed := &discordgo.MessageEmbed{
		Title:       "🏆 We have a winner",
		Description: fmt.Sprintf("**%s** outlasted everyone and takes **%s coins**", winnerName, FormatBalance(s.Winner)),
		Color:       colorPurple,
		Footer:      wheelFooter(e.WheelID),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Pot", Value: FormatBalance(s.Pot), Inline: true},
		},
	}
	if s.Host > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Host cut", Value: FormatBalance(s.Host), Inline: true})
	}
	if s.House > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "House", Value: FormatBalance(s.House), Inline: true})
	}
	return embed
}

func wheelAbortedEmbed(e events.WheelAbortedEvent) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🛑 Wheel cancelled",
		Description: fmt.Sprintf("Reason: %s. %d players were refunded.", e.Reason, e.RefundedCount),
		Color:       colorRed,
		Footer:      wheelFooter(e.WheelID),
	}
}

// wheelDetailEmbed renders the current state of a wheel and its players
func wheelDetailEmbed(detail *models.WheelDetail) *discordgo.MessageEmbed {
	wheel := detail.Wheel
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Wheel #%d: %s", wheel.ID, wheel.Status),
		Description: fmt.Sprintf("**Pot: %s coins** (entry %s)", FormatBalance(wheel.Pot(len(detail.Participants))), FormatBalance(wheel.EntryFee)),
		Color:       colorGold,
		Footer:      wheelFooter(wheel.ID),
		Timestamp:   wheel.CreatedAt.Format(timestampLayout),
	}

	switch wheel.Status {
	case models.WheelStatusRunning:
		embed.Color = colorBlue
	case models.WheelStatusFinished:
		embed.Color = colorPurple
	case models.WheelStatusAborted:
		embed.Color = colorRed
	}

	var lines []string
	for _, p := range detail.Participants {
		if p.EliminatedAt != nil {
			lines = append(lines, fmt.Sprintf("~~%s~~", p.Username))
			continue
		}
		if wheel.WinnerID != nil && *wheel.WinnerID == p.UserID {
			lines = append(lines, fmt.Sprintf("🏆 **%s**", p.Username))
			continue
		}
		lines = append(lines, p.Username)
	}

	value := "*No players yet*"
	if len(lines) > 0 {
		value = strings.Join(lines, "\n")
	}
	if len(value) > 1024 {
		value = value[:1021] + "..."
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("Players (%d active)", detail.ActiveCount()),
		Value: value,
	})
	return embed
}
