// Package outbox is a durable queue of notifications for moderators. Producers only enqueue; a Relay delivers queued
// messages and deletes them once delivery succeeds, so a crash between the two re-sends rather than drops.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SenderClass string

const (
	// notices generated by the bot itself
	ClassModerator SenderClass = "moderator"
	// private messages from users, relayed to moderators
	ClassUser SenderClass = "user"
)

// Message is a queued notification.
type Message struct {
	ID uint `gorm:"primaryKey"`

	// optional; a second message with the same key is dropped at enqueue
	DedupeKey *string `gorm:"uniqueIndex"`

	Subject    string      `gorm:"not null"`
	Body       string      `gorm:"not null"`
	Class      SenderClass `gorm:"not null"`
	From       string
	EnqueuedAt time.Time `gorm:"index;not null"`
	Attempts   int       `gorm:"not null;default:0"`
	LastError  string
}

func (Message) TableName() string {
	return "outbox_messages"
}

// NewNotice builds a moderator notice. An empty dedupe key means the notice is never deduplicated.
func NewNotice(dedupeKey, subject, body string) Message {
	m := Message{
		Subject: subject,
		Body:    body,
		Class:   ClassModerator,
	}
	if dedupeKey != "" {
		m.DedupeKey = &dedupeKey
	}
	return m
}

// NewUserMessage builds a relayed user message, deduplicated on the platform message ID.
func NewUserMessage(messageID, from, subject, body string) Message {
	key := "user-message:" + messageID
	return Message{
		DedupeKey: &key,
		Subject:   subject,
		Body:      body,
		Class:     ClassUser,
		From:      from,
	}
}

type Outbox struct {
	db     *gorm.DB
	logger *slog.Logger

	// clock for enqueue times; time.Now when nil
	now func() time.Time
}

func New(db *gorm.DB, logger *slog.Logger) (*Outbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Message{}); err != nil {
		return nil, fmt.Errorf("migrating outbox: %w", err)
	}
	return &Outbox{
		db:     db,
		logger: logger.With("component", "outbox"),
		now:    time.Now,
	}, nil
}

// Enqueue durably stores a message. A message whose dedupe key is already queued is silently dropped.
func (o *Outbox) Enqueue(ctx context.Context, msg Message) error {
	msg.ID = 0
	msg.Attempts = 0
	msg.LastError = ""
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = o.now().UTC()
	}
	res := o.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&msg)
	if res.Error != nil {
		return fmt.Errorf("enqueueing %q: %w", msg.Subject, res.Error)
	}
	if res.RowsAffected == 0 {
		o.logger.Debug("dropped duplicate outbox message", "subject", msg.Subject)
		return nil
	}
	messagesEnqueued.WithLabelValues(string(msg.Class)).Inc()
	o.logger.Info("enqueued outbox message", "id", msg.ID, "class", msg.Class, "subject", msg.Subject)
	return nil
}

// Pending returns up to limit queued messages, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Message, error) {
	var msgs []Message
	if err := o.db.WithContext(ctx).Order("enqueued_at ASC, id ASC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("listing outbox: %w", err)
	}
	return msgs, nil
}

// Ack removes a delivered message.
func (o *Outbox) Ack(ctx context.Context, id uint) error {
	if err := o.db.WithContext(ctx).Delete(&Message{}, id).Error; err != nil {
		return fmt.Errorf("deleting outbox message %d: %w", id, err)
	}
	return nil
}

// RecordFailure bumps the attempt count and keeps the latest error for operators.
func (o *Outbox) RecordFailure(ctx context.Context, id uint, sendErr error) error {
	err := o.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Updates(map[string]any{
		"attempts":   gorm.Expr("attempts + ?", 1),
		"last_error": sendErr.Error(),
	}).Error
	if err != nil {
		return fmt.Errorf("recording outbox failure for %d: %w", id, err)
	}
	return nil
}

func (o *Outbox) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := o.db.WithContext(ctx).Model(&Message{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting outbox: %w", err)
	}
	return n, nil
}
