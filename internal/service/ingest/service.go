// Package ingest turns raw protocol-edge events into chat-scoped rows and
// durable domain events. Every chat-scoped write resolves its chat key first,
// so no message row is ever persisted without one.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/werpoz/chatrelay/internal/alias"
	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/outbox"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/util"
)

// Raw event kinds as produced by the protocol edge.
const (
	KindMessage       = "message"
	KindMessageEdit   = "message.edit"
	KindMessageDelete = "message.delete"
	KindReaction      = "reaction"
	KindContact       = "contact"
)

var ErrBadEvent = errors.New("ingest: malformed raw event")

// RawEvent is the Kafka payload from the protocol edge. ChatID is whatever
// identifier form the protocol surfaced this time; the resolver canonicalizes
// it.
type RawEvent struct {
	Kind      string    `json:"kind"`
	TenantID  string    `json:"tenantId"`
	SessionID string    `json:"sessionId"`
	ChatID    string    `json:"chatId,omitempty"`
	MsgID     string    `json:"msgId,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	FromMe    bool      `json:"fromMe,omitempty"`
	JID       string    `json:"jid,omitempty"`  // contact sync
	LID       string    `json:"lid,omitempty"`  // contact sync
	Name      string    `json:"name,omitempty"` // contact sync
	Timestamp time.Time `json:"timestamp"`
}

// Service wires the resolver, the chat-scoped repositories and the outbox
// publisher into one ingestion path.
type Service struct {
	resolver  *alias.Resolver
	messages  repository.MessagesRepository
	contacts  repository.ContactsRepository
	publisher *outbox.Publisher
}

func New(
	resolver *alias.Resolver,
	messages repository.MessagesRepository,
	contacts repository.ContactsRepository,
	publisher *outbox.Publisher,
) *Service {
	return &Service{
		resolver:  resolver,
		messages:  messages,
		contacts:  contacts,
		publisher: publisher,
	}
}

// Process handles one raw event end to end. Safe to call again with the same
// event: message rows upsert on (session_id, ext_id) and alias resolution is
// deterministic.
func (s *Service) Process(ctx context.Context, raw RawEvent) error {
	if raw.TenantID == "" || raw.SessionID == "" {
		return ErrBadEvent
	}

	switch raw.Kind {
	case KindMessage, KindMessageEdit:
		return s.processMessage(ctx, raw)
	case KindMessageDelete:
		return s.processChatEvent(ctx, raw, model.EventMessageDeleted)
	case KindReaction:
		return s.processChatEvent(ctx, raw, model.EventMessageReaction)
	case KindContact:
		return s.processContact(ctx, raw)
	default:
		return fmt.Errorf("%w: kind %q", ErrBadEvent, raw.Kind)
	}
}

func (s *Service) processMessage(ctx context.Context, raw RawEvent) error {
	if raw.ChatID == "" || raw.MsgID == "" {
		return ErrBadEvent
	}

	keys, err := s.resolver.EnsureAliases(ctx, raw.SessionID, raw.TenantID, []string{raw.ChatID})
	if err != nil {
		return err
	}
	chatKey := keys[util.NormalizeIdentifier(raw.ChatID)]

	sentAt := raw.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	msg := model.ChatMessage{
		ID:        util.NewID(),
		TenantID:  raw.TenantID,
		SessionID: raw.SessionID,
		ChatKey:   chatKey,
		ExtID:     raw.MsgID,
		Sender:    raw.Sender,
		Text:      raw.Text,
		FromMe:    raw.FromMe,
		SentAt:    sentAt,
	}
	if err := s.messages.Insert(ctx, nil, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	name := model.EventMessageCreated
	if raw.Kind == KindMessageEdit {
		name = model.EventMessageEdited
	}
	ev, err := model.NewEvent(name, raw.TenantID, raw.SessionID, model.MessageEventData{
		ChatKey:   chatKey,
		MessageID: raw.MsgID,
		From:      raw.Sender,
		Text:      raw.Text,
		FromMe:    raw.FromMe,
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, []model.DomainEvent{ev})
}

// processChatEvent covers deletes and reactions: no new row, but the chat key
// must still resolve and the event must still flow.
func (s *Service) processChatEvent(ctx context.Context, raw RawEvent, eventName string) error {
	if raw.ChatID == "" || raw.MsgID == "" {
		return ErrBadEvent
	}

	keys, err := s.resolver.EnsureAliases(ctx, raw.SessionID, raw.TenantID, []string{raw.ChatID})
	if err != nil {
		return err
	}

	ev, err := model.NewEvent(eventName, raw.TenantID, raw.SessionID, model.MessageEventData{
		ChatKey:   keys[util.NormalizeIdentifier(raw.ChatID)],
		MessageID: raw.MsgID,
		From:      raw.Sender,
		Reaction:  raw.Emoji,
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, []model.DomainEvent{ev})
}

func (s *Service) processContact(ctx context.Context, raw RawEvent) error {
	if raw.JID == "" {
		return ErrBadEvent
	}

	jid := util.NormalizeIdentifier(raw.JID)
	lid := util.NormalizeIdentifier(raw.LID)

	// The jid alias resolves (and mints) here; the lid side is filled in by
	// the repair pass from the stored link, so both forms end on one key.
	if _, err := s.resolver.EnsureAliases(ctx, raw.SessionID, raw.TenantID, []string{jid}); err != nil {
		return err
	}

	link := model.ContactLink{
		ID:        util.NewID(),
		TenantID:  raw.TenantID,
		SessionID: raw.SessionID,
		JID:       jid,
		LID:       lid,
		Name:      raw.Name,
	}
	if err := s.contacts.Upsert(ctx, nil, link); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	ev, err := model.NewEvent(model.EventContactSynced, raw.TenantID, raw.SessionID, model.ContactSyncedData{
		JID:  jid,
		LID:  lid,
		Name: raw.Name,
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, []model.DomainEvent{ev})
}
