package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskOrderEnrichment looks up the phone owner for a paid order and stores
// the result on the order row.
const TaskOrderEnrichment = "orders.enrichment"

type OrderEnrichmentPayload struct {
	OrderID string `json:"orderId"`
	// Phone is the 8-digit national number to look up.
	Phone string `json:"phone"`
}

func NewOrderEnrichmentTask(payload OrderEnrichmentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderEnrichment, data), nil
}

func ParseOrderEnrichmentPayload(task *asynq.Task) (OrderEnrichmentPayload, error) {
	var payload OrderEnrichmentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OrderEnrichmentPayload{}, err
	}
	return payload, nil
}
