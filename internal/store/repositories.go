package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/oklog/ulid/v2"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// Destination kinds for reminders.
const (
	DestinationDM      = "dm"
	DestinationChannel = "channel"
)

// Destination is where a reminder is delivered.
type Destination struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Reminder is a scheduled message owned by a user.
type Reminder struct {
	ID                string      `json:"id"`
	OwnerID           string      `json:"owner_id"`
	GuildID           string      `json:"guild_id,omitempty"`
	Destination       Destination `json:"destination"`
	FallbackChannelID string      `json:"fallback_channel_id,omitempty"`
	Body              string      `json:"body"`
	DueAt             time.Time   `json:"due_at"`
	CreatedAt         time.Time   `json:"created_at"`
	Attempts          int         `json:"attempts,omitempty"`
}

// Key is the store key of the reminder.
func (r Reminder) Key() string {
	return Key(r.OwnerID, r.ID)
}

// Reminders stores Reminder records.
type Reminders struct {
	s Store
}

// NewReminders returns the reminder repository backed by s.
func NewReminders(s Store) *Reminders {
	return &Reminders{s: s}
}

// Add stores r, assigning an ID when it has none.
func (r *Reminders) Add(ctx context.Context, rem Reminder) (Reminder, error) {
	if rem.OwnerID == "" {
		return Reminder{}, fmt.Errorf("reminder owner is required")
	}
	if rem.ID == "" {
		rem.ID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = time.Now()
	}
	rem.DueAt = rem.DueAt.UTC()
	rem.CreatedAt = rem.CreatedAt.UTC()
	rec, err := Encode(rem)
	if err != nil {
		return Reminder{}, err
	}
	if err := r.s.Put(ctx, CollectionReminders, rem.Key(), rec); err != nil {
		return Reminder{}, err
	}
	return rem, nil
}

// Due returns reminders due at or before now, oldest first. A due record
// that cannot be decoded is logged and deleted so it cannot block later
// deliveries.
func (r *Reminders) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	entries, err := r.s.QueryDue(ctx, CollectionReminders, now)
	if err != nil {
		return nil, err
	}
	out, bad := decodeReminders(entries)
	for _, e := range bad {
		if err := r.s.Delete(ctx, CollectionReminders, e.Key); err != nil && !errors.Is(err, ErrNotFound) {
			logger.WithFields(logrus.Fields{
				"key":   e.Key,
				"error": err,
			}).Error("undecodable-reminder-delete-failed")
		}
	}
	return out, nil
}

// ListByOwner returns pending reminders of owner sorted by due time.
func (r *Reminders) ListByOwner(ctx context.Context, ownerID string) ([]Reminder, error) {
	entries, err := r.s.Scan(ctx, CollectionReminders, ownerID+":")
	if err != nil {
		return nil, err
	}
	out, _ := decodeReminders(entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// Delete removes the reminder.
func (r *Reminders) Delete(ctx context.Context, rem Reminder) error {
	return r.s.Delete(ctx, CollectionReminders, rem.Key())
}

// RecordAttempt increments the delivery attempt counter and returns it.
func (r *Reminders) RecordAttempt(ctx context.Context, rem Reminder) (int, error) {
	n, err := r.s.Increment(ctx, CollectionReminders, rem.Key(), "attempts", 1)
	return int(n), err
}

// decodeReminders decodes each entry on its own and returns the entries
// that failed alongside the good reminders.
func decodeReminders(entries []Entry) ([]Reminder, []Entry) {
	out := make([]Reminder, 0, len(entries))
	var bad []Entry
	for _, e := range entries {
		var rem Reminder
		if err := Decode(e.Record, &rem); err != nil {
			logger.WithFields(logrus.Fields{
				"key":   e.Key,
				"error": err,
			}).Warn("undecodable-reminder-skipped")
			bad = append(bad, e)
			continue
		}
		out = append(out, rem)
	}
	return out, bad
}

// UserStats is the activity counter of one member in one guild.
type UserStats struct {
	GuildID      string    `json:"guild_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name,omitempty"`
	Messages     int64     `json:"messages"`
	CommandsUsed int64     `json:"commands_used"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// Leaderboard metrics.
const (
	MetricMessages = "messages"
	MetricCommands = "commands_used"
)

// Stats stores UserStats records keyed by guild:user.
type Stats struct {
	s Store
}

// NewStats returns the stats repository backed by s.
func NewStats(s Store) *Stats {
	return &Stats{s: s}
}

// RecordMessage counts one message, and one command when isCommand is set.
func (st *Stats) RecordMessage(ctx context.Context, guildID, userID, name string, isCommand bool, at time.Time) error {
	key := Key(guildID, userID)
	if _, err := st.s.Increment(ctx, CollectionStats, key, MetricMessages, 1); err != nil {
		return err
	}
	if isCommand {
		if _, err := st.s.Increment(ctx, CollectionStats, key, MetricCommands, 1); err != nil {
			return err
		}
	}
	stamp := FormatTime(at)
	return st.s.Update(ctx, CollectionStats, key, func(cur mo.Option[Record]) (Record, error) {
		rec := cur.OrElse(Record{})
		rec["guild_id"] = guildID
		rec["user_id"] = userID
		if name != "" {
			rec["name"] = name
		}
		if _, ok := rec["first_seen"]; !ok {
			rec["first_seen"] = stamp
		}
		rec["last_seen"] = stamp
		return rec, nil
	})
}

// Get returns the stats of a member, if any.
func (st *Stats) Get(ctx context.Context, guildID, userID string) (mo.Option[UserStats], error) {
	rec, err := st.s.Get(ctx, CollectionStats, Key(guildID, userID))
	if err != nil || rec.IsAbsent() {
		return mo.None[UserStats](), err
	}
	var us UserStats
	if err := Decode(rec.MustGet(), &us); err != nil {
		return mo.None[UserStats](), err
	}
	return mo.Some(us), nil
}

// Top returns the n most active members of a guild by metric.
func (st *Stats) Top(ctx context.Context, guildID, metric string, n int) ([]UserStats, error) {
	if metric != MetricMessages && metric != MetricCommands {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	entries, err := st.s.Scan(ctx, CollectionStats, guildID+":")
	if err != nil {
		return nil, err
	}
	all := make([]UserStats, 0, len(entries))
	for _, e := range entries {
		var us UserStats
		if err := Decode(e.Record, &us); err != nil {
			return nil, err
		}
		all = append(all, us)
	}
	value := func(us UserStats) int64 {
		if metric == MetricCommands {
			return us.CommandsUsed
		}
		return us.Messages
	}
	sort.SliceStable(all, func(i, j int) bool { return value(all[i]) > value(all[j]) })
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Warning is one moderator warning.
type Warning struct {
	Reason        string    `json:"reason"`
	ModeratorID   string    `json:"moderator_id"`
	ModeratorName string    `json:"moderator"`
	Timestamp     time.Time `json:"timestamp"`
}

type warningLog struct {
	GuildID string    `json:"guild_id"`
	UserID  string    `json:"user_id"`
	Items   []Warning `json:"items"`
}

// Warnings stores the append-only warning log per guild:user.
type Warnings struct {
	s Store
}

// NewWarnings returns the warnings repository backed by s.
func NewWarnings(s Store) *Warnings {
	return &Warnings{s: s}
}

// Add appends w and returns the member's total warning count.
func (w *Warnings) Add(ctx context.Context, guildID, userID string, warn Warning) (int, error) {
	total := 0
	err := w.s.Update(ctx, CollectionWarnings, Key(guildID, userID), func(cur mo.Option[Record]) (Record, error) {
		log := warningLog{GuildID: guildID, UserID: userID}
		if rec, ok := cur.Get(); ok {
			if err := Decode(rec, &log); err != nil {
				return nil, err
			}
		}
		log.Items = append(log.Items, warn)
		total = len(log.Items)
		return Encode(log)
	})
	return total, err
}

// List returns every warning of a member, oldest first.
func (w *Warnings) List(ctx context.Context, guildID, userID string) ([]Warning, error) {
	rec, err := w.s.Get(ctx, CollectionWarnings, Key(guildID, userID))
	if err != nil || rec.IsAbsent() {
		return nil, err
	}
	var log warningLog
	if err := Decode(rec.MustGet(), &log); err != nil {
		return nil, err
	}
	return log.Items, nil
}

// Poll is a reaction poll posted in a channel.
type Poll struct {
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	Emojis    []string  `json:"emojis"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	voteFieldPrefix  = "votes_"
	voterFieldPrefix = "voter_"
)

// Polls stores polls keyed by guild:message.
type Polls struct {
	s Store
}

// NewPolls returns the poll repository backed by s.
func NewPolls(s Store) *Polls {
	return &Polls{s: s}
}

// Create stores a new poll.
func (p *Polls) Create(ctx context.Context, poll Poll) error {
	rec, err := Encode(poll)
	if err != nil {
		return err
	}
	return p.s.Put(ctx, CollectionPolls, Key(poll.GuildID, poll.MessageID), rec)
}

// Get returns the poll attached to a message, if any.
func (p *Polls) Get(ctx context.Context, guildID, messageID string) (mo.Option[Poll], error) {
	rec, err := p.s.Get(ctx, CollectionPolls, Key(guildID, messageID))
	if err != nil || rec.IsAbsent() {
		return mo.None[Poll](), err
	}
	var poll Poll
	if err := Decode(rec.MustGet(), &poll); err != nil {
		return mo.None[Poll](), err
	}
	return mo.Some(poll), nil
}

// VoteOnce counts a vote for option index unless userID already voted for
// it. Reactions on messages without a poll are ignored.
func (p *Polls) VoteOnce(ctx context.Context, guildID, messageID, userID string, option int) (bool, error) {
	counted := false
	voter := voterFieldPrefix + userID + "_" + strconv.Itoa(option)
	err := p.s.Update(ctx, CollectionPolls, Key(guildID, messageID), func(cur mo.Option[Record]) (Record, error) {
		rec, ok := cur.Get()
		if !ok {
			return nil, errNoPoll
		}
		if _, seen := rec[voter]; seen {
			return rec, nil
		}
		next, _, err := incrementRecord(cur, voteFieldPrefix+strconv.Itoa(option), 1)
		if err != nil {
			return nil, err
		}
		next[voter] = true
		counted = true
		return next, nil
	})
	if errors.Is(err, errNoPoll) {
		return false, nil
	}
	return counted, err
}

var errNoPoll = errors.New("no poll on message")

// Tally returns vote counts by option index.
func (p *Polls) Tally(ctx context.Context, guildID, messageID string) (map[int]int64, error) {
	rec, err := p.s.Get(ctx, CollectionPolls, Key(guildID, messageID))
	if err != nil {
		return nil, err
	}
	out := make(map[int]int64)
	r, ok := rec.Get()
	if !ok {
		return out, nil
	}
	for field := range r {
		if !strings.HasPrefix(field, voteFieldPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(field, voteFieldPrefix))
		if err != nil {
			continue
		}
		if n, ok := r.Int(field); ok {
			out[idx] = n
		}
	}
	return out, nil
}

// GuildSettings holds per-guild configuration changed at runtime.
type GuildSettings struct {
	GuildID          string    `json:"guild_id"`
	LogChannelID     string    `json:"log_channel_id,omitempty"`
	WelcomeChannelID string    `json:"welcome_channel_id,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Settings stores GuildSettings keyed by guild.
type Settings struct {
	s Store
}

// NewSettings returns the settings repository backed by s.
func NewSettings(s Store) *Settings {
	return &Settings{s: s}
}

// Get returns the settings of a guild; a guild without settings gets zero values.
func (st *Settings) Get(ctx context.Context, guildID string) (GuildSettings, error) {
	rec, err := st.s.Get(ctx, CollectionSettings, guildID)
	if err != nil {
		return GuildSettings{}, err
	}
	gs := GuildSettings{GuildID: guildID}
	if r, ok := rec.Get(); ok {
		if err := Decode(r, &gs); err != nil {
			return GuildSettings{}, err
		}
	}
	return gs, nil
}

// SetLogChannel records the audit log channel of a guild.
func (st *Settings) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return st.set(ctx, guildID, "log_channel_id", channelID)
}

// SetWelcomeChannel records the welcome channel of a guild.
func (st *Settings) SetWelcomeChannel(ctx context.Context, guildID, channelID string) error {
	return st.set(ctx, guildID, "welcome_channel_id", channelID)
}

func (st *Settings) set(ctx context.Context, guildID, field, value string) error {
	return st.s.Update(ctx, CollectionSettings, guildID, func(cur mo.Option[Record]) (Record, error) {
		rec := cur.OrElse(Record{})
		rec["guild_id"] = guildID
		rec[field] = value
		rec["updated_at"] = FormatTime(time.Now())
		return rec, nil
	})
}
