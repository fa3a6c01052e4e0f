package scheduler

import (
	"context"
	"time"

	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/internal/store"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// ReminderStore is the subset of store.Reminders the delivery task uses.
type ReminderStore interface {
	Due(ctx context.Context, now time.Time) ([]store.Reminder, error)
	Delete(ctx context.Context, rem store.Reminder) error
	RecordAttempt(ctx context.Context, rem store.Reminder) (int, error)
}

// Outcome of one delivery.
type Outcome int

const (
	Delivered Outcome = iota + 1
	DeliveredToFallback
	Dropped
	Deferred
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case DeliveredToFallback:
		return "delivered_fallback"
	case Dropped:
		return "dropped"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// ReminderTask delivers due reminders.
type ReminderTask struct {
	Reminders       ReminderStore
	Gateway         bot.Gateway
	DeliveryTimeout time.Duration
	MaxAttempts     int
	Now             func() time.Time
}

// NewReminderTask returns a task with default timeouts.
func NewReminderTask(reminders ReminderStore, gw bot.Gateway) *ReminderTask {
	return &ReminderTask{
		Reminders:       reminders,
		Gateway:         gw,
		DeliveryTimeout: constants.DefaultDeliveryTimeout,
		MaxAttempts:     constants.DefaultMaxDeliveryAttempts,
		Now:             time.Now,
	}
}

// Run delivers every due reminder. A failure on one reminder never stops
// the others; only a failed query is returned.
func (t *ReminderTask) Run(ctx context.Context) error {
	due, err := t.Reminders.Due(ctx, t.now())
	if err != nil {
		return err
	}
	for _, rem := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.Deliver(ctx, rem)
	}
	return nil
}

// Deliver handles one reminder and reports what happened to it.
func (t *ReminderTask) Deliver(ctx context.Context, rem store.Reminder) Outcome {
	log := logger.WithFields(logrus.Fields{
		"reminder_id": rem.ID,
		"owner_id":    rem.OwnerID,
		"destination": rem.Destination.Kind,
	})

	msg := ReminderMessage(rem)
	err := t.send(ctx, rem.Destination, msg)
	if err != nil && bot.Retryable(err) {
		err = t.send(ctx, rem.Destination, msg)
	}

	outcome := Delivered
	switch {
	case err == nil:
	case bot.Retryable(err) || ctx.Err() != nil:
		attempts, aerr := t.Reminders.RecordAttempt(ctx, rem)
		if aerr != nil {
			log.WithError(aerr).Warn("reminder-attempt-record-failed")
		}
		if attempts < t.maxAttempts() {
			log.WithFields(logrus.Fields{
				"error":    err,
				"attempts": attempts,
			}).Warn("reminder-delivery-deferred")
			return Deferred
		}
		log.WithField("attempts", attempts).Warn("reminder-delivery-attempts-exhausted")
		outcome = t.fallback(ctx, rem, msg, log)
	default:
		log.WithFields(logrus.Fields{
			"error": err,
			"kind":  bot.KindOf(err).String(),
		}).Warn("reminder-delivery-failed")
		outcome = t.fallback(ctx, rem, msg, log)
	}

	if derr := t.Reminders.Delete(context.WithoutCancel(ctx), rem); derr != nil {
		log.WithError(derr).Error("reminder-delete-failed")
	}
	log.WithField("outcome", outcome.String()).Info("reminder-processed")
	return outcome
}

func (t *ReminderTask) fallback(ctx context.Context, rem store.Reminder, msg bot.Message, log *logrus.Entry) Outcome {
	if rem.FallbackChannelID == "" || (rem.Destination.Kind == store.DestinationChannel && rem.Destination.ID == rem.FallbackChannelID) {
		return Dropped
	}
	dest := store.Destination{Kind: store.DestinationChannel, ID: rem.FallbackChannelID}
	fallbackMsg := msg
	fallbackMsg.Content = "<@" + rem.OwnerID + ">"
	if err := t.send(ctx, dest, fallbackMsg); err != nil {
		log.WithError(err).Warn("reminder-fallback-failed")
		return Dropped
	}
	return DeliveredToFallback
}

func (t *ReminderTask) send(ctx context.Context, dest store.Destination, msg bot.Message) error {
	timeout := t.DeliveryTimeout
	if timeout <= 0 {
		timeout = constants.DefaultDeliveryTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if dest.Kind == store.DestinationChannel {
		_, err = t.Gateway.SendMessage(sendCtx, dest.ID, msg)
	} else {
		_, err = t.Gateway.SendDirect(sendCtx, dest.ID, msg)
	}
	return err
}

func (t *ReminderTask) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *ReminderTask) maxAttempts() int {
	if t.MaxAttempts > 0 {
		return t.MaxAttempts
	}
	return constants.DefaultMaxDeliveryAttempts
}

// ReminderMessage renders a due reminder.
func ReminderMessage(rem store.Reminder) bot.Message {
	return bot.EmbedMessage(&bot.Embed{
		Title:       "⏰ Reminder",
		Description: rem.Body,
		Color:       bot.ColorBlue,
		Footer:      "Set " + rem.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"),
		Timestamp:   rem.DueAt,
	})
}
