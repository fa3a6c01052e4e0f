package bot

import (
	"context"
	"errors"
	"time"

	"github.com/keepmind9/guildbot/internal/event"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/keepmind9/guildbot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// RetryPolicy controls WithRetry. Zero fields take defaults.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = constants.DefaultRetryAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = constants.DefaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = constants.MaxRetryDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// RetryingGateway retries rate-limited and transient failures with
// exponential backoff. Permanent failures return immediately.
type RetryingGateway struct {
	inner  Gateway
	policy RetryPolicy
}

// WithRetry wraps gw.
func WithRetry(gw Gateway, policy RetryPolicy) *RetryingGateway {
	return &RetryingGateway{inner: gw, policy: policy.withDefaults()}
}

func (r *RetryingGateway) do(ctx context.Context, op string, fn func() error) error {
	delay := r.policy.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !Retryable(err) || attempt >= r.policy.Attempts {
			return err
		}
		wait := delay
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		if wait > r.policy.MaxDelay {
			wait = r.policy.MaxDelay
		}
		logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err,
		}).Warn("gateway-call-retrying")
		if sleepErr := r.policy.Sleep(ctx, wait); sleepErr != nil {
			return err
		}
		delay *= 2
	}
}

func (r *RetryingGateway) SendMessage(ctx context.Context, channelID string, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := r.do(ctx, "send_message", func() (err error) {
		ref, err = r.inner.SendMessage(ctx, channelID, msg)
		return err
	})
	return ref, err
}

func (r *RetryingGateway) SendDirect(ctx context.Context, userID string, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := r.do(ctx, "send_direct", func() (err error) {
		ref, err = r.inner.SendDirect(ctx, userID, msg)
		return err
	})
	return ref, err
}

func (r *RetryingGateway) Reply(ctx context.Context, origin event.Origin, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := r.do(ctx, "reply", func() (err error) {
		ref, err = r.inner.Reply(ctx, origin, msg)
		return err
	})
	return ref, err
}

func (r *RetryingGateway) AddReaction(ctx context.Context, ref MessageRef, emoji string) error {
	return r.do(ctx, "add_reaction", func() error {
		return r.inner.AddReaction(ctx, ref, emoji)
	})
}

func (r *RetryingGateway) EditMessage(ctx context.Context, ref MessageRef, msg Message) error {
	return r.do(ctx, "edit_message", func() error {
		return r.inner.EditMessage(ctx, ref, msg)
	})
}

func (r *RetryingGateway) DeleteMessages(ctx context.Context, channelID string, count int) (int, error) {
	var n int
	err := r.do(ctx, "delete_messages", func() (err error) {
		n, err = r.inner.DeleteMessages(ctx, channelID, count)
		return err
	})
	return n, err
}

func (r *RetryingGateway) Kick(ctx context.Context, member Member, reason string) error {
	return r.do(ctx, "kick", func() error { return r.inner.Kick(ctx, member, reason) })
}

func (r *RetryingGateway) Ban(ctx context.Context, member Member, reason string) error {
	return r.do(ctx, "ban", func() error { return r.inner.Ban(ctx, member, reason) })
}

func (r *RetryingGateway) Timeout(ctx context.Context, member Member, d time.Duration, reason string) error {
	return r.do(ctx, "timeout", func() error { return r.inner.Timeout(ctx, member, d, reason) })
}

func (r *RetryingGateway) RemoveTimeout(ctx context.Context, member Member, reason string) error {
	return r.do(ctx, "remove_timeout", func() error { return r.inner.RemoveTimeout(ctx, member, reason) })
}

func (r *RetryingGateway) Latency() time.Duration {
	return r.inner.Latency()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
