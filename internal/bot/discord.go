package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

const PlatformDiscord = "discord"

// bulkDeleteMaxAge is how old a message may be for the bulk-delete endpoint.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

// DiscordSessionInterface defines the subset of discordgo.Session we use.
// This allows us to mock it in tests without depending on concrete types.
type DiscordSessionInterface interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	HeartbeatLatency() time.Duration
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// DiscordBot implements Platform and CommandSyncer for Discord
type DiscordBot struct {
	mu        sync.RWMutex
	token     string
	session   DiscordSessionInterface
	state     *discordgo.State
	appID     string
	sink      func(event.Event)
	lifecycle func(Lifecycle)
	removers  []func()
}

var (
	_ Platform      = (*DiscordBot)(nil)
	_ CommandSyncer = (*DiscordBot)(nil)
)

// NewDiscordBot creates a new Discord bot instance
func NewDiscordBot(token string) *DiscordBot {
	return &DiscordBot{token: token}
}

// newDiscordBotWithSession is used by tests to inject a mock session.
func newDiscordBotWithSession(session DiscordSessionInterface) *DiscordBot {
	return &DiscordBot{session: session}
}

func (d *DiscordBot) Name() string { return PlatformDiscord }

// Start establishes connection to Discord and begins delivering events
func (d *DiscordBot) Start(ctx context.Context, sink func(event.Event), lifecycle func(Lifecycle)) error {
	logger.WithFields(logrus.Fields{
		"token": logger.MaskSecret(d.token),
	}).Info("starting-discord-bot")

	d.mu.Lock()
	d.sink = sink
	d.lifecycle = lifecycle
	session := d.session
	d.mu.Unlock()

	if session == nil {
		s, err := newDiscordSession(d.token)
		if err != nil {
			return err
		}

		d.mu.Lock()
		d.session = s
		d.state = s.State
		d.mu.Unlock()
		session = s
	}

	d.mu.Lock()
	d.removers = append(d.removers,
		session.AddHandler(d.onReady),
		session.AddHandler(d.onConnect),
		session.AddHandler(d.onDisconnect),
		session.AddHandler(d.onResumed),
		session.AddHandler(d.onMessageCreate),
		session.AddHandler(d.onMessageDelete),
		session.AddHandler(d.onMemberAdd),
		session.AddHandler(d.onMemberRemove),
		session.AddHandler(d.onMemberUpdate),
		session.AddHandler(d.onReactionAdd),
		session.AddHandler(d.onInteraction),
	)
	d.mu.Unlock()

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	return nil
}

// newDiscordSession configures a gateway session. Handlers run on the
// websocket reader goroutine so events reach the sink in wire order.
func newDiscordSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	s.SyncEvents = true
	s.StateEnabled = true
	s.State.MaxMessageCount = 100
	return s, nil
}

// Stop closes the Discord connection and cleans up resources
func (d *DiscordBot) Stop() error {
	d.mu.Lock()
	session := d.session
	removers := d.removers
	d.session = nil
	d.removers = nil
	d.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (d *DiscordBot) emit(ev event.Event) {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

func (d *DiscordBot) signal(state Lifecycle) {
	d.mu.RLock()
	lifecycle := d.lifecycle
	d.mu.RUnlock()
	logger.WithFields(logrus.Fields{
		"platform": PlatformDiscord,
		"state":    state.String(),
	}).Info("gateway-lifecycle-changed")
	if lifecycle != nil {
		lifecycle(state)
	}
}

func (d *DiscordBot) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	d.signal(Connected)
}

func (d *DiscordBot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	d.signal(Disconnected)
	// discordgo reconnects on its own
	d.signal(Reconnecting)
}

func (d *DiscordBot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	d.signal(Connected)
}

func (d *DiscordBot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	d.mu.Lock()
	if r.Application != nil && r.Application.ID != "" {
		d.appID = r.Application.ID
	} else if r.User != nil {
		d.appID = r.User.ID
	}
	d.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"platform": PlatformDiscord,
		"guilds":   len(r.Guilds),
	}).Info("discord-ready")

	if len(r.Guilds) == 0 {
		d.emit(event.New(event.ReadyToSync, PlatformDiscord))
		return
	}
	for _, g := range r.Guilds {
		ev := event.New(event.ReadyToSync, PlatformDiscord)
		ev.Guild = d.guildInfo(g.ID)
		d.emit(ev)
	}
}

func (d *DiscordBot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	ev := event.New(event.MessageCreated, PlatformDiscord)
	ev.Author = d.userFrom(m.Author, m.Member, m.GuildID, m.ChannelID)
	ev.Guild = d.guildInfo(m.GuildID)
	ev.ChannelID = m.ChannelID
	ev.MessageID = m.ID
	ev.Text = mo.Some(m.Content)
	for _, a := range m.Attachments {
		ev.Attachments = append(ev.Attachments, event.Attachment{
			URL:         a.URL,
			ContentType: a.ContentType,
			Filename:    a.Filename,
		})
	}
	ev.Origin = event.Origin{
		Platform:  PlatformDiscord,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
	}

	logger.WithFields(logrus.Fields{
		"platform": PlatformDiscord,
		"user_id":  m.Author.ID,
		"channel":  m.ChannelID,
		"event_id": ev.ID,
	}).Debug("received-discord-message")
	d.emit(ev)
}

func (d *DiscordBot) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if m.Message == nil {
		return
	}
	ev := event.New(event.MessageDeleted, PlatformDiscord)
	ev.Guild = d.guildInfo(m.GuildID)
	ev.ChannelID = m.ChannelID
	ev.MessageID = m.ID
	if before := m.BeforeDelete; before != nil {
		if before.Author != nil {
			ev.Author = d.userFrom(before.Author, before.Member, m.GuildID, "")
		}
		ev.Text = mo.Some(before.Content)
	}
	ev.Origin = event.Origin{Platform: PlatformDiscord, GuildID: m.GuildID, ChannelID: m.ChannelID}
	d.emit(ev)
}

func (d *DiscordBot) memberEvent(kind event.Kind, m *discordgo.Member) (event.Event, bool) {
	if m == nil || m.User == nil {
		return event.Event{}, false
	}
	ev := event.New(kind, PlatformDiscord)
	ev.Author = d.userFrom(m.User, m, m.GuildID, "")
	ev.Guild = d.guildInfo(m.GuildID)
	ev.Nickname = m.Nick
	ev.Roles = m.Roles
	ev.Origin = event.Origin{Platform: PlatformDiscord, GuildID: m.GuildID}
	return ev, true
}

func (d *DiscordBot) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if ev, ok := d.memberEvent(event.MemberJoined, m.Member); ok {
		d.emit(ev)
	}
}

func (d *DiscordBot) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if ev, ok := d.memberEvent(event.MemberLeft, m.Member); ok {
		d.emit(ev)
	}
}

func (d *DiscordBot) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	ev, ok := d.memberEvent(event.MemberUpdated, m.Member)
	if !ok {
		return
	}
	if b := m.BeforeUpdate; b != nil {
		ev.Before = mo.Some(event.MemberSnapshot{Nickname: b.Nick, Roles: b.Roles})
	}
	d.emit(ev)
}

func (d *DiscordBot) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	ev := event.New(event.ReactionAdded, PlatformDiscord)
	if r.Member != nil && r.Member.User != nil {
		ev.Author = d.userFrom(r.Member.User, r.Member, r.GuildID, r.ChannelID)
	} else {
		ev.Author = event.User{ID: r.UserID}
	}
	ev.Guild = d.guildInfo(r.GuildID)
	ev.ChannelID = r.ChannelID
	ev.MessageID = r.MessageID
	ev.Emoji = r.Emoji.Name
	ev.Origin = event.Origin{
		Platform:  PlatformDiscord,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
	}
	d.emit(ev)
}

// onInteraction turns a slash command into a MessageCreated event. The
// interaction is acknowledged right away; replies go through the follow-up.
func (d *DiscordBot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil {
		return
	}

	if err := session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		logger.WithFields(logrus.Fields{
			"interaction": i.ID,
			"error":       err,
		}).Warn("failed-to-acknowledge-interaction")
		return
	}

	data := i.ApplicationCommandData()
	parts := []string{data.Name}
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			parts = append(parts, opt.StringValue())
		}
	}

	var user *discordgo.User
	if i.Member != nil {
		user = i.Member.User
	} else {
		user = i.User
	}
	if user == nil {
		return
	}

	ev := event.New(event.MessageCreated, PlatformDiscord)
	ev.Author = d.userFrom(user, i.Member, i.GuildID, i.ChannelID)
	ev.Guild = d.guildInfo(i.GuildID)
	ev.ChannelID = i.ChannelID
	ev.MessageID = i.ID
	ev.Text = mo.Some(strings.Join(parts, " "))
	ev.Slash = true
	ev.Origin = event.Origin{
		Platform:  PlatformDiscord,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Raw:       i.Interaction,
	}
	d.emit(ev)
}

func (d *DiscordBot) userFrom(u *discordgo.User, m *discordgo.Member, guildID, channelID string) event.User {
	user := event.User{
		ID:          u.ID,
		Name:        u.Username,
		DisplayName: u.Username,
		Bot:         u.Bot,
		AvatarURL:   u.AvatarURL("256"),
	}
	if created, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		user.CreatedAt = created
	}
	if m != nil {
		if m.Nick != "" {
			user.DisplayName = m.Nick
		}
		user.JoinedAt = m.JoinedAt
		user.Permissions = m.Permissions
	}
	if user.Permissions == 0 && guildID != "" {
		user.Permissions = d.permissions(u.ID, guildID, channelID)
	}
	return user
}

func (d *DiscordBot) permissions(userID, guildID, channelID string) int64 {
	d.mu.RLock()
	state := d.state
	d.mu.RUnlock()
	if state == nil {
		return 0
	}
	if channelID != "" {
		if perms, err := state.UserChannelPermissions(userID, channelID); err == nil {
			return perms
		}
	}
	if g, err := state.Guild(guildID); err == nil && g.OwnerID == userID {
		return event.PermAdministrator
	}
	return 0
}

func (d *DiscordBot) guildInfo(guildID string) event.Guild {
	if guildID == "" {
		return event.Guild{}
	}
	info := event.Guild{ID: guildID}
	d.mu.RLock()
	state := d.state
	d.mu.RUnlock()
	if state == nil {
		return info
	}
	if g, err := state.Guild(guildID); err == nil {
		info.Name = g.Name
		info.SystemChannelID = g.SystemChannelID
		info.MemberCount = g.MemberCount
		info.OwnerID = g.OwnerID
	}
	return info
}

func (d *DiscordBot) getSession() (DiscordSessionInterface, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, &APIError{Kind: ErrTransient, Op: "session", Err: errors.New("discord session not initialized")}
	}
	return d.session, nil
}

// SendMessage sends a message to a Discord channel. Content over the
// message limit is split into several messages; the last one is returned.
func (d *DiscordBot) SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error) {
	session, err := d.getSession()
	if err != nil {
		return MessageRef{}, err
	}
	chunks := splitMessage(msg.Content, constants.MaxDiscordMessageLength)
	var sent *discordgo.Message
	for i, chunk := range chunks {
		data := &discordgo.MessageSend{Content: chunk}
		if i == len(chunks)-1 && msg.Embed != nil {
			data.Embeds = []*discordgo.MessageEmbed{toDiscordEmbed(msg.Embed)}
		}
		sent, err = session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
		if err != nil {
			logger.WithFields(logrus.Fields{
				"channel": channelID,
				"error":   err,
			}).Error("failed-to-send-message-to-discord")
			return MessageRef{}, discordError("send message", err)
		}
	}
	logger.WithField("channel", channelID).Debug("message-sent-to-discord")
	return MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

// SendDirect opens a DM channel and sends to it.
func (d *DiscordBot) SendDirect(ctx context.Context, userID string, msg Message) (MessageRef, error) {
	session, err := d.getSession()
	if err != nil {
		return MessageRef{}, err
	}
	ch, err := session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return MessageRef{}, discordError("open direct channel", err)
	}
	return d.SendMessage(ctx, ch.ID, msg)
}

// Reply answers an event. Slash commands are answered through the
// interaction follow-up, everything else in the origin channel.
func (d *DiscordBot) Reply(ctx context.Context, origin event.Origin, msg Message) (MessageRef, error) {
	interaction, ok := origin.Raw.(*discordgo.Interaction)
	if !ok {
		return d.SendMessage(ctx, origin.ChannelID, msg)
	}
	session, err := d.getSession()
	if err != nil {
		return MessageRef{}, err
	}
	params := &discordgo.WebhookParams{
		Content: truncateMessage(msg.Content, constants.MaxDiscordMessageLength),
	}
	if msg.Embed != nil {
		params.Embeds = []*discordgo.MessageEmbed{toDiscordEmbed(msg.Embed)}
	}
	sent, err := session.FollowupMessageCreate(interaction, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return MessageRef{}, discordError("follow up interaction", err)
	}
	return MessageRef{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (d *DiscordBot) AddReaction(ctx context.Context, ref MessageRef, emoji string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	return discordError("add reaction",
		session.MessageReactionAdd(ref.ChannelID, ref.MessageID, emoji, discordgo.WithContext(ctx)))
}

func (d *DiscordBot) EditMessage(ctx context.Context, ref MessageRef, msg Message) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	if msg.Content != "" {
		edit.SetContent(truncateMessage(msg.Content, constants.MaxDiscordMessageLength))
	}
	if msg.Embed != nil {
		edit.SetEmbed(toDiscordEmbed(msg.Embed))
	}
	_, err = session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return discordError("edit message", err)
}

// DeleteMessages removes the count most recent messages in a channel.
// Messages older than the bulk-delete window are removed one by one.
func (d *DiscordBot) DeleteMessages(ctx context.Context, channelID string, count int) (int, error) {
	session, err := d.getSession()
	if err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, nil
	}
	if count > constants.MaxPurgeCount+1 {
		count = constants.MaxPurgeCount + 1
	}
	var msgs []*discordgo.Message
	for len(msgs) < count {
		limit := count - len(msgs)
		if limit > 100 {
			limit = 100
		}
		before := ""
		if len(msgs) > 0 {
			before = msgs[len(msgs)-1].ID
		}
		page, err := session.ChannelMessages(channelID, limit, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return 0, discordError("list messages", err)
		}
		msgs = append(msgs, page...)
		if len(page) < limit {
			break
		}
	}

	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	var recent, old []string
	for _, m := range msgs {
		if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil && ts.Before(cutoff) {
			old = append(old, m.ID)
			continue
		}
		recent = append(recent, m.ID)
	}

	deleted := 0
	for len(recent) > 0 {
		batch := recent
		if len(batch) > 100 {
			batch = batch[:100]
		}
		recent = recent[len(batch):]
		if len(batch) == 1 {
			old = append(old, batch[0])
			continue
		}
		if err := session.ChannelMessagesBulkDelete(channelID, batch, discordgo.WithContext(ctx)); err != nil {
			return deleted, discordError("bulk delete messages", err)
		}
		deleted += len(batch)
	}
	for _, id := range old {
		if err := session.ChannelMessageDelete(channelID, id, discordgo.WithContext(ctx)); err != nil {
			return deleted, discordError("delete message", err)
		}
		deleted++
	}
	return deleted, nil
}

func (d *DiscordBot) Kick(ctx context.Context, member Member, reason string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	return discordError("kick member",
		session.GuildMemberDeleteWithReason(member.GuildID, member.UserID, reason, discordgo.WithContext(ctx)))
}

func (d *DiscordBot) Ban(ctx context.Context, member Member, reason string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	return discordError("ban member",
		session.GuildBanCreateWithReason(member.GuildID, member.UserID, reason, 0, discordgo.WithContext(ctx)))
}

func (d *DiscordBot) Timeout(ctx context.Context, member Member, dur time.Duration, reason string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	until := time.Now().Add(dur)
	return discordError("timeout member",
		session.GuildMemberTimeout(member.GuildID, member.UserID, &until,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (d *DiscordBot) RemoveTimeout(ctx context.Context, member Member, reason string) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	return discordError("remove timeout",
		session.GuildMemberTimeout(member.GuildID, member.UserID, nil,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

// Latency is the gateway heartbeat round trip.
func (d *DiscordBot) Latency() time.Duration {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil {
		return 0
	}
	return session.HeartbeatLatency()
}

// SyncCommands overwrites the guild's slash commands with cmds. An empty
// guildID registers global commands.
func (d *DiscordBot) SyncCommands(ctx context.Context, guildID string, cmds []CommandSpec) error {
	session, err := d.getSession()
	if err != nil {
		return err
	}
	d.mu.RLock()
	appID := d.appID
	d.mu.RUnlock()
	if appID == "" {
		return &APIError{Kind: ErrTransient, Op: "sync commands", Err: errors.New("application id not known before ready")}
	}

	appCmds := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		ac := &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: c.Description,
		}
		if c.Argument != "" {
			ac.Options = []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        c.Argument,
				Description: c.ArgumentHelp,
				Required:    true,
			}}
		}
		appCmds = append(appCmds, ac)
	}
	if _, err := session.ApplicationCommandBulkOverwrite(appID, guildID, appCmds, discordgo.WithContext(ctx)); err != nil {
		return discordError("sync commands", err)
	}
	logger.WithFields(logrus.Fields{
		"guild":    guildID,
		"commands": len(appCmds),
	}).Info("slash-commands-synced")
	return nil
}

func toDiscordEmbed(e *Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: truncateMessage(e.Description, constants.MaxDiscordEmbedDescription),
		URL:         e.URL,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return out
}

// discordError maps a discordgo failure onto an APIError.
func discordError(op string, err error) error {
	if err == nil {
		return nil
	}
	apiErr := &APIError{Kind: ErrTransient, Op: op, Err: err}

	var rl *discordgo.RateLimitError
	var rest *discordgo.RESTError
	switch {
	case errors.As(err, &rl):
		apiErr.Kind = ErrRateLimited
		if rl.RateLimit != nil && rl.TooManyRequests != nil {
			apiErr.RetryAfter = rl.RetryAfter
		}
	case errors.As(err, &rest) && rest.Response != nil:
		apiErr.Kind = kindForStatus(rest.Response.StatusCode)
	case errors.Is(err, context.Canceled):
		apiErr.Kind = ErrUnknown
	}
	return apiErr
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrPermission
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrTransient
	default:
		return ErrUnknown
	}
}
