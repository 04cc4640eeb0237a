package services

import (
	"fmt"
	"strings"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/kafka"
	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
)

// ChangeEvent is one outbound change notification, staged during a
// transaction and sent only after it commits.
type ChangeEvent struct {
	EntityType string
	EntityID   uint
	Name       string
	ParentID   *uint
	Attributes map[string]interface{}
}

// ChangeSet accumulates the change events of one unit of work. A rolled
// back transaction simply discards its change set unsent.
type ChangeSet struct {
	events []ChangeEvent
}

// NewChangeSet creates an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{}
}

// Stage records an event for an entity whose listed fields were saved.
// Nothing is staged when no changed field belongs to the entity's
// published attribute set.
func (cs *ChangeSet) Stage(entity models.Publishable, changed []string) {
	published := entity.PublishedFields()

	announce := false
	for _, field := range changed {
		if _, ok := published[field]; ok {
			announce = true
			break
		}
	}
	if !announce {
		return
	}

	attrs := make(map[string]interface{}, len(published))
	for field, value := range published {
		attrs[camelize(field)] = value
	}

	cs.events = append(cs.events, ChangeEvent{
		EntityType: entity.EntityType(),
		EntityID:   entity.GetID(),
		Name:       entity.GetName(),
		ParentID:   entity.GetParentID(),
		Attributes: attrs,
	})
}

// Events returns the staged events in staging order
func (cs *ChangeSet) Events() []ChangeEvent {
	return cs.events
}

// PublisherService sends committed entity changes to the processed-data
// topic. It is invoked strictly after the owning transaction commits.
type PublisherService struct {
	logger       *utils.Logger
	kafkaManager *kafka.Manager
	instanceID   string
}

// NewPublisherService creates a new publisher service. A nil Kafka manager
// disables publishing, which is the mode tests run in.
func NewPublisherService(kafkaManager *kafka.Manager, instanceID string, logger *utils.Logger) *PublisherService {
	return &PublisherService{
		logger:       logger.Named("publisher"),
		kafkaManager: kafkaManager,
		instanceID:   instanceID,
	}
}

// PublishAll sends every staged event of a committed change set. Publish
// failures are logged and do not propagate: the state change is already
// durable and consumers catch up from later notifications.
func (p *PublisherService) PublishAll(cs *ChangeSet) {
	for _, event := range cs.Events() {
		p.publish(event)
	}
}

func (p *PublisherService) publish(event ChangeEvent) {
	body := map[string]interface{}{
		"id":   fmt.Sprintf("%s_%d", event.EntityType, event.EntityID),
		"name": event.Name,
	}
	if event.ParentID != nil {
		body["parentId"] = *event.ParentID
	} else {
		body["parentId"] = nil
	}
	for attr, value := range event.Attributes {
		body[attr] = value
	}

	key := fmt.Sprintf("%s/%s/%d", p.instanceID, event.EntityType, event.EntityID)

	if p.kafkaManager == nil {
		p.logger.Debug("Publishing disabled, dropping change event",
			zap.String("key", key))
		return
	}

	if err := p.kafkaManager.ProduceProcData(key, body); err != nil {
		p.logger.Error("Failed to publish change event",
			zap.String("key", key),
			zap.Error(err))
	}
}

// camelize converts a snake_case field name to the camelCase attribute
// name used on the wire.
func camelize(field string) string {
	parts := strings.Split(field, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
