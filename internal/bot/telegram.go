package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

const PlatformTelegram = "telegram"

// adminCacheTTL bounds how long a chat-member status lookup is reused.
const adminCacheTTL = 5 * time.Minute

// TelegramAPI is the subset of tgbotapi.BotAPI used by TelegramBot.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

type adminEntry struct {
	perms   int64
	expires time.Time
}

// TelegramBot implements Platform for Telegram using long polling.
// Bot commands ("/ping") arrive as slash events.
type TelegramBot struct {
	mu        sync.RWMutex
	token     string
	api       TelegramAPI
	cancel    context.CancelFunc
	lifecycle func(Lifecycle)
	latency   atomic.Int64
	admins    map[string]adminEntry
}

var _ Platform = (*TelegramBot)(nil)

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(token string) *TelegramBot {
	return &TelegramBot{token: token, admins: make(map[string]adminEntry)}
}

func newTelegramBotWithAPI(api TelegramAPI) *TelegramBot {
	return &TelegramBot{api: api, admins: make(map[string]adminEntry)}
}

func (t *TelegramBot) Name() string { return PlatformTelegram }

// Start establishes long polling to Telegram and delivers updates to sink
func (t *TelegramBot) Start(ctx context.Context, sink func(event.Event), lifecycle func(Lifecycle)) error {
	logger.WithFields(logrus.Fields{
		"token": logger.MaskSecret(t.token),
	}).Info("starting-telegram-bot-with-long-polling")

	t.mu.Lock()
	api := t.api
	t.lifecycle = lifecycle
	t.mu.Unlock()

	if api == nil {
		botAPI, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"error": err,
			}).Error("failed-to-initialize-telegram-bot")
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}
		logger.WithFields(logrus.Fields{
			"bot_username": botAPI.Self.UserName,
			"bot_id":       botAPI.Self.ID,
		}).Info("telegram-bot-initialized-successfully")
		api = botAPI
		t.mu.Lock()
		t.api = api
		t.mu.Unlock()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	pollCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.signal(Connected)
	sink(event.New(event.ReadyToSync, PlatformTelegram))

	go func() {
		for {
			select {
			case <-pollCtx.Done():
				logger.Info("telegram-long-polling-stopped")
				return
			case update, ok := <-updates:
				if !ok {
					logger.Info("telegram-updates-channel-closed")
					t.signal(Disconnected)
					return
				}
				if update.Message != nil {
					for _, ev := range t.eventsFrom(pollCtx, update.Message) {
						sink(ev)
					}
				}
			}
		}
	}()

	logger.Info("telegram-long-polling-connection-started")
	return nil
}

// Stop closes the Telegram long polling connection and cleans up resources
func (t *TelegramBot) Stop() error {
	t.mu.Lock()
	cancel := t.cancel
	api := t.api
	t.cancel = nil
	t.api = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if api != nil {
		api.StopReceivingUpdates()
	}
	logger.Info("telegram-bot-stopped")
	return nil
}

func (t *TelegramBot) signal(state Lifecycle) {
	t.mu.RLock()
	lifecycle := t.lifecycle
	t.mu.RUnlock()
	logger.WithFields(logrus.Fields{
		"platform": PlatformTelegram,
		"state":    state.String(),
	}).Info("gateway-lifecycle-changed")
	if lifecycle != nil {
		lifecycle(state)
	}
}

// eventsFrom maps one Telegram message to zero or more events. Service
// messages about joins and leaves become member events.
func (t *TelegramBot) eventsFrom(ctx context.Context, m *tgbotapi.Message) []event.Event {
	if m.Chat == nil {
		return nil
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	var guild event.Guild
	if !m.Chat.IsPrivate() {
		guild = event.Guild{ID: chatID, Name: m.Chat.Title, SystemChannelID: chatID}
	}
	origin := event.Origin{
		Platform:  PlatformTelegram,
		GuildID:   guild.ID,
		ChannelID: chatID,
		MessageID: strconv.Itoa(m.MessageID),
	}

	var events []event.Event
	for i := range m.NewChatMembers {
		ev := event.New(event.MemberJoined, PlatformTelegram)
		ev.Author = telegramUser(&m.NewChatMembers[i])
		ev.Guild = guild
		ev.ChannelID = chatID
		ev.Origin = origin
		events = append(events, ev)
	}
	if m.LeftChatMember != nil {
		ev := event.New(event.MemberLeft, PlatformTelegram)
		ev.Author = telegramUser(m.LeftChatMember)
		ev.Guild = guild
		ev.ChannelID = chatID
		ev.Origin = origin
		events = append(events, ev)
	}
	if len(events) > 0 || m.From == nil {
		return events
	}

	ev := event.New(event.MessageCreated, PlatformTelegram)
	ev.Author = telegramUser(m.From)
	if guild.ID != "" {
		ev.Author.Permissions = t.permissions(ctx, m.Chat.ID, m.From.ID)
	}
	ev.Guild = guild
	ev.ChannelID = chatID
	ev.MessageID = origin.MessageID
	ev.Timestamp = m.Time().UTC()
	ev.Origin = origin

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if m.IsCommand() {
		text = strings.TrimSpace(m.Command() + " " + m.CommandArguments())
		ev.Slash = true
	}
	ev.Text = mo.Some(text)
	if len(m.Photo) > 0 {
		ev.Attachments = append(ev.Attachments, event.Attachment{
			URL:         m.Photo[len(m.Photo)-1].FileID,
			ContentType: "image/jpeg",
		})
	}

	logger.WithFields(logrus.Fields{
		"platform":   PlatformTelegram,
		"user_id":    ev.Author.ID,
		"chat_id":    chatID,
		"chat_type":  m.Chat.Type,
		"message_id": m.MessageID,
		"event_id":   ev.ID,
	}).Debug("received-telegram-message-parsed")
	return append(events, ev)
}

func telegramUser(u *tgbotapi.User) event.User {
	display := strings.TrimSpace(u.FirstName + " " + u.LastName)
	name := u.UserName
	if name == "" {
		name = display
	}
	return event.User{
		ID:          strconv.FormatInt(u.ID, 10),
		Name:        name,
		DisplayName: display,
		Bot:         u.IsBot,
	}
}

// permissions maps chat administrators onto PermAdministrator.
func (t *TelegramBot) permissions(_ context.Context, chatID, userID int64) int64 {
	key := fmt.Sprintf("%d:%d", chatID, userID)
	t.mu.RLock()
	entry, ok := t.admins[key]
	api := t.api
	t.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.perms
	}
	if api == nil {
		return 0
	}

	member, err := api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err,
		}).Warn("failed-to-fetch-telegram-chat-member")
		return 0
	}
	var perms int64
	if member.IsCreator() || member.IsAdministrator() {
		perms = event.PermAdministrator
	}
	t.mu.Lock()
	t.admins[key] = adminEntry{perms: perms, expires: time.Now().Add(adminCacheTTL)}
	t.mu.Unlock()
	return perms
}

func (t *TelegramBot) getAPI() (TelegramAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.api == nil {
		return nil, &APIError{Kind: ErrTransient, Op: "session", Err: errors.New("telegram bot not initialized")}
	}
	return t.api, nil
}

func parseChatID(op, id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, &APIError{Kind: ErrNotFound, Op: op, Err: fmt.Errorf("invalid chat ID %q: %w", id, err)}
	}
	return n, nil
}

// SendMessage sends a message to a Telegram chat. Embeds are rendered as text.
func (t *TelegramBot) SendMessage(ctx context.Context, chatID string, msg Message) (MessageRef, error) {
	return t.send(ctx, chatID, 0, msg)
}

func (t *TelegramBot) send(ctx context.Context, chatID string, replyTo int, msg Message) (MessageRef, error) {
	api, err := t.getAPI()
	if err != nil {
		return MessageRef{}, err
	}
	id, err := parseChatID("send message", chatID)
	if err != nil {
		return MessageRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return MessageRef{}, &APIError{Kind: ErrUnknown, Op: "send message", Err: err}
	}

	var sent tgbotapi.Message
	for _, chunk := range splitMessage(renderText(msg), constants.MaxTelegramMessageLength) {
		cfg := tgbotapi.NewMessage(id, chunk)
		cfg.ReplyToMessageID = replyTo
		start := time.Now()
		sent, err = api.Send(cfg)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"chat_id": chatID,
				"error":   err,
			}).Error("failed-to-send-message-to-telegram")
			return MessageRef{}, telegramError("send message", err)
		}
		t.latency.Store(int64(time.Since(start)))
	}
	logger.WithField("chat_id", chatID).Debug("message-sent-to-telegram")
	return MessageRef{ChannelID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// SendDirect sends to the user's private chat, whose ID equals the user ID.
func (t *TelegramBot) SendDirect(ctx context.Context, userID string, msg Message) (MessageRef, error) {
	return t.send(ctx, userID, 0, msg)
}

func (t *TelegramBot) Reply(ctx context.Context, origin event.Origin, msg Message) (MessageRef, error) {
	replyTo, _ := strconv.Atoi(origin.MessageID)
	return t.send(ctx, origin.ChannelID, replyTo, msg)
}

func (t *TelegramBot) AddReaction(context.Context, MessageRef, string) error {
	return unsupported("add reaction")
}

func (t *TelegramBot) EditMessage(_ context.Context, ref MessageRef, msg Message) error {
	api, err := t.getAPI()
	if err != nil {
		return err
	}
	chatID, err := parseChatID("edit message", ref.ChannelID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return &APIError{Kind: ErrNotFound, Op: "edit message", Err: err}
	}
	text := truncateMessage(renderText(msg), constants.MaxTelegramMessageLength)
	_, err = api.Request(tgbotapi.NewEditMessageText(chatID, msgID, text))
	return telegramError("edit message", err)
}

// DeleteMessages is unsupported: the Bot API cannot list chat history.
func (t *TelegramBot) DeleteMessages(context.Context, string, int) (int, error) {
	return 0, unsupported("delete messages")
}

func (t *TelegramBot) memberConfig(op string, member Member) (tgbotapi.ChatMemberConfig, error) {
	chatID, err := parseChatID(op, member.GuildID)
	if err != nil {
		return tgbotapi.ChatMemberConfig{}, err
	}
	userID, err := strconv.ParseInt(member.UserID, 10, 64)
	if err != nil {
		return tgbotapi.ChatMemberConfig{}, &APIError{Kind: ErrNotFound, Op: op, Err: err}
	}
	return tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}, nil
}

// Kick removes a member without a lasting ban.
func (t *TelegramBot) Kick(_ context.Context, member Member, _ string) error {
	api, err := t.getAPI()
	if err != nil {
		return err
	}
	cfg, err := t.memberConfig("kick member", member)
	if err != nil {
		return err
	}
	if _, err := api.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: cfg}); err != nil {
		return telegramError("kick member", err)
	}
	_, err = api.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: cfg, OnlyIfBanned: true})
	return telegramError("kick member", err)
}

func (t *TelegramBot) Ban(_ context.Context, member Member, _ string) error {
	api, err := t.getAPI()
	if err != nil {
		return err
	}
	cfg, err := t.memberConfig("ban member", member)
	if err != nil {
		return err
	}
	_, err = api.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: cfg, RevokeMessages: true})
	return telegramError("ban member", err)
}

func (t *TelegramBot) Timeout(_ context.Context, member Member, d time.Duration, _ string) error {
	api, err := t.getAPI()
	if err != nil {
		return err
	}
	cfg, err := t.memberConfig("timeout member", member)
	if err != nil {
		return err
	}
	_, err = api.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: cfg,
		UntilDate:        time.Now().Add(d).Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	})
	return telegramError("timeout member", err)
}

func (t *TelegramBot) RemoveTimeout(_ context.Context, member Member, _ string) error {
	api, err := t.getAPI()
	if err != nil {
		return err
	}
	cfg, err := t.memberConfig("remove timeout", member)
	if err != nil {
		return err
	}
	_, err = api.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: cfg,
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	})
	return telegramError("remove timeout", err)
}

// Latency is the round trip of the last successful send.
func (t *TelegramBot) Latency() time.Duration {
	return time.Duration(t.latency.Load())
}

// renderText flattens a message with an embed into plain text.
func renderText(msg Message) string {
	if msg.Embed == nil {
		return msg.Content
	}
	var b strings.Builder
	if msg.Content != "" {
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	e := msg.Embed
	if e.Title != "" {
		b.WriteString(e.Title)
		b.WriteString("\n")
	}
	if e.Description != "" {
		b.WriteString(e.Description)
		b.WriteString("\n")
	}
	for _, f := range e.Fields {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}
	if e.URL != "" {
		b.WriteString(e.URL)
		b.WriteString("\n")
	}
	if e.Footer != "" {
		b.WriteString(e.Footer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// telegramError maps a Bot API failure onto an APIError.
func telegramError(op string, err error) error {
	if err == nil {
		return nil
	}
	apiErr := &APIError{Kind: ErrTransient, Op: op, Err: err}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		switch {
		case tgErr.Code == http.StatusTooManyRequests:
			apiErr.Kind = ErrRateLimited
			apiErr.RetryAfter = time.Duration(tgErr.RetryAfter) * time.Second
		case tgErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(tgErr.Message), "not found"):
			apiErr.Kind = ErrNotFound
		default:
			apiErr.Kind = kindForStatus(tgErr.Code)
		}
	}
	return apiErr
}
