package bot

import (
	"context"
	"fmt"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// embedSender is the part of *discordgo.Session the announcer uses
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type userLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Announcer posts wheel lifecycle updates to a Discord channel
type Announcer struct {
	sender    embedSender
	channelID string
	users     userLookup
}

func NewAnnouncer(sender embedSender, channelID string, users userLookup) *Announcer {
	return &Announcer{sender: sender, channelID: channelID, users: users}
}

// Attach subscribes to the lifecycle events worth announcing
func (a *Announcer) Attach(bus *events.Bus) {
	bus.SubscribeAll([]events.EventType{
		events.EventTypeWheelCreated,
		events.EventTypeWheelStarted,
		events.EventTypeWheelFinished,
		events.EventTypeWheelAborted,
	}, a.handle)
}

func (a *Announcer) handle(ctx context.Context, event events.Event) {
	var embed *discordgo.MessageEmbed
	switch e := event.(type) {
	case events.WheelCreatedEvent:
		embed = wheelCreatedEmbed(e.Wheel, a.username(ctx, e.Wheel.HostID))
	case events.WheelStartedEvent:
		embed = wheelStartedEmbed(e)
	case events.WheelFinishedEvent:
		embed = wheelFinishedEmbed(e, a.username(ctx, e.WinnerID))
	case events.WheelAbortedEvent:
		embed = wheelAbortedEmbed(e)
	default:
		return
	}

	if _, err := a.sender.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"channelID": a.channelID,
			"error":     err,
		}).Error("Failed to announce wheel event")
	}
}

func (a *Announcer) username(ctx context.Context, userID int64) string {
	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		log.WithFields(log.Fields{
			"userID": userID,
			"error":  err,
		}).Warn("Failed to look up user for announcement")
		return fmt.Sprintf("player #%d", userID)
	}
	return user.Username
}
