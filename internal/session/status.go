package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/outbox"
	"github.com/werpoz/chatrelay/internal/repository"
)

// StatusService translates provider callbacks into session rows and durable
// domain events. Publish failures surface as logs only; a callback must not
// fail the provider.
type StatusService struct {
	sessions  repository.SessionsRepository
	publisher *outbox.Publisher
}

func NewStatusService(sessions repository.SessionsRepository, publisher *outbox.Publisher) *StatusService {
	return &StatusService{sessions: sessions, publisher: publisher}
}

// CallbacksFor returns the callback set wired for one tenant's session.
func (s *StatusService) CallbacksFor(tenantID string) Callbacks {
	return Callbacks{
		OnQR: func(sessionID, code string) {
			s.record(tenantID, sessionID, model.SessionQRPending, "",
				model.EventSessionQRUpdated, model.SessionQRData{Code: code})
		},
		OnConnected: func(sessionID, ownJID string) {
			s.record(tenantID, sessionID, model.SessionConnected, ownJID,
				model.EventSessionConnected, model.SessionStatusData{Status: model.SessionConnected.String()})
		},
		OnDisconnected: func(sessionID, reason string) {
			s.record(tenantID, sessionID, model.SessionOffline, "",
				model.EventSessionDisconnected, model.SessionStatusData{Status: model.SessionOffline.String(), Reason: reason})
		},
	}
}

func (s *StatusService) record(tenantID, sessionID string, status model.SessionStatus, jid, eventName string, data any) {
	ctx := context.Background()

	if err := s.sessions.UpdateStatus(ctx, sessionID, status, jid); err != nil {
		logger.L().Error("session status update failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	ev, err := model.NewEvent(eventName, tenantID, sessionID, data)
	if err != nil {
		logger.L().Error("build session event", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []model.DomainEvent{ev}); err != nil {
		logger.L().Error("publish session event",
			zap.String("session_id", sessionID), zap.String("event", eventName), zap.Error(err))
	}
}
