package relay

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// NewRelayTask wraps p in an asynq task
func NewRelayTask(p RelayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relay payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRelay, data), nil
}

// ParseRelayTask decodes the payload of a relay task
func ParseRelayTask(t *asynq.Task) (RelayPayload, error) {
	var p RelayPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return RelayPayload{}, fmt.Errorf("failed to unmarshal relay payload: %w", err)
	}
	return p, nil
}
