// Package consumers wires inbound message queues into the KMS service.
package consumers

import (
	"context"

	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
)

// UserEventConsumer keeps the local user projection in sync with the
// identity service.
type UserEventConsumer struct {
	consumer *messaging.Consumer
	users    *repository.UserCacheRepository
	logger   *logger.Logger
}

// NewUserEventConsumer creates a new user event consumer
func NewUserEventConsumer(rmq *messaging.RabbitMQ, users *repository.UserCacheRepository, log *logger.Logger) (*UserEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "kms-service.user-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}

	c := &UserEventConsumer{
		consumer: consumer,
		users:    users,
		logger:   log.WithComponent("user-consumer"),
	}

	consumer.RegisterHandler(messaging.EventUserCreated, c.handleUserCreated)
	consumer.RegisterHandler(messaging.EventUserUpdated, c.handleUserUpdated)
	consumer.RegisterHandler(messaging.EventUserDeleted, c.handleUserDeleted)

	return c, nil
}

// Start starts consuming messages
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *UserEventConsumer) handleUserCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Str("name", data.Name).
		Msg("received user created event")

	return c.users.Upsert(ctx, &repository.CachedUser{
		ID:    data.UserID,
		Email: data.Email,
		Name:  data.Name,
		Role:  data.Role,
	})
}

func (c *UserEventConsumer) handleUserUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user updated event")

	existing, err := c.users.GetByID(ctx, data.UserID)
	if err != nil {
		// The create event may still be in flight; the next update
		// will carry the full state again.
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	if name, ok := stringField(data.Fields, "name"); ok {
		existing.Name = name
	}
	if email, ok := stringField(data.Fields, "email"); ok {
		existing.Email = email
	}
	if role, ok := stringField(data.Fields, "role_name"); ok {
		existing.Role = role
	}

	return c.users.Upsert(ctx, existing)
}

func (c *UserEventConsumer) handleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user deleted event")

	return c.users.Delete(ctx, data.UserID)
}

// stringField extracts the target value of a changed field, which the
// identity service ships as {"from": ..., "to": ...}.
func stringField(fields map[string]any, key string) (string, bool) {
	change, ok := fields[key].(map[string]interface{})
	if !ok {
		return "", false
	}
	to, ok := change["to"].(string)
	return to, ok
}
