package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jindalchat/internal/auth"
	"jindalchat/internal/identity"
	"jindalchat/internal/logger"
	"jindalchat/internal/metrics"
	"jindalchat/internal/models"
	"jindalchat/internal/service/ai"
	"jindalchat/internal/worker"
)

// FallbackMessage is stored as the assistant reply when a completion fails.
const FallbackMessage = "I apologize, but I encountered an error. Please try again."

// ErrScheduleFailed wraps a scheduler refusal after the user message was
// stored.
var ErrScheduleFailed = errors.New("schedule response")

type MessageStore interface {
	AppendMessage(ctx context.Context, userID int64, content string, role models.Role) (*models.Message, error)
	ListMessagesByUser(ctx context.Context, userID int64) ([]*models.Message, error)
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

type Service struct {
	store     MessageStore
	users     *identity.Resolver
	completer Completer
	scheduler worker.Scheduler
	metrics   *metrics.Metrics
	log       *logger.Logger
}

func NewService(store MessageStore, users *identity.Resolver, completer Completer, scheduler worker.Scheduler, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		users:     users,
		completer: completer,
		scheduler: scheduler,
		metrics:   m,
		log:       log.With("component", "chat"),
	}
}

// SendMessage stores the caller's message and schedules the assistant reply.
// It returns once the job is accepted; the reply lands in the log later.
func (s *Service) SendMessage(ctx context.Context, id *auth.Identity, content string) (*models.Message, error) {
	user, err := s.users.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.AppendMessage(ctx, user.ID, content, models.RoleUser)
	if err != nil {
		return nil, err
	}
	s.metrics.MessageStored(string(models.RoleUser))

	job := worker.NewJob(user.ID, content)
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		s.log.Error("schedule response failed", "user_id", user.ID, "message_id", msg.ID, "error", err)
		return msg, fmt.Errorf("%w: %v", ErrScheduleFailed, err)
	}
	s.metrics.JobScheduled(s.scheduler.Backend())
	s.log.Debug("response scheduled", "user_id", user.ID, "job_id", job.ID)
	return msg, nil
}

// Respond is the worker handler. It asks the model about the job's message
// alone and appends either the reply or FallbackMessage. Only a storage
// failure is returned.
func (s *Service) Respond(ctx context.Context, job worker.Job) error {
	start := time.Now()
	outcome := metrics.OutcomeSuccess
	reply, err := s.completer.Complete(ctx, ai.SystemPrompt, job.UserMessage)
	if err != nil {
		s.log.Warn("completion failed", "job_id", job.ID, "user_id", job.UserID, "error", err)
		reply = FallbackMessage
		outcome = metrics.OutcomeFallback
	}
	if _, err := s.store.AppendMessage(ctx, job.UserID, reply, models.RoleAssistant); err != nil {
		return fmt.Errorf("store assistant reply: %w", err)
	}
	s.metrics.MessageStored(string(models.RoleAssistant))
	s.metrics.Completion(outcome)
	s.metrics.ObserveResponse(time.Since(start))
	return nil
}

// GetMessages returns the caller's whole log oldest first. Unknown or
// anonymous callers get an empty list.
func (s *Service) GetMessages(ctx context.Context, id *auth.Identity) ([]*models.Message, error) {
	user, err := s.users.ResolveLenient(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return []*models.Message{}, nil
	}
	return s.store.ListMessagesByUser(ctx, user.ID)
}

// CurrentUser returns the caller's record, or nil when there is none.
func (s *Service) CurrentUser(ctx context.Context, id *auth.Identity) (*models.User, error) {
	return s.users.ResolveLenient(ctx, id)
}
