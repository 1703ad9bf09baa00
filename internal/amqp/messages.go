package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
)

// EvaluationKind selects what the worker re-evaluates.
type EvaluationKind string

const (
	// EvaluateBudget re-evaluates the budget EntityID.
	EvaluateBudget EvaluationKind = "budget"
	// EvaluateRules runs every active rule of UserID for the window containing At.
	EvaluateRules EvaluationKind = "rules"
	// EvaluateTransaction applies transaction EntityID to the user's goals.
	EvaluateTransaction EvaluationKind = "transaction"
	// EvaluateUser sweeps all budgets and rules of UserID.
	EvaluateUser EvaluationKind = "user"
)

// EvaluationRequest is a lightweight message; the worker loads everything
// else from the store.
type EvaluationRequest struct {
	Kind      EvaluationKind `json:"kind"`
	UserID    uuid.UUID      `json:"user_id"`
	EntityID  uuid.UUID      `json:"entity_id,omitempty"`
	At        time.Time      `json:"at,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewEvaluationRequest(kind EvaluationKind, userID, entityID uuid.UUID) *EvaluationRequest {
	now := time.Now()
	return &EvaluationRequest{
		Kind:      kind,
		UserID:    userID,
		EntityID:  entityID,
		At:        now,
		Timestamp: now,
	}
}

// Validate checks the request carries the ids its kind needs.
func (r *EvaluationRequest) Validate() error {
	switch r.Kind {
	case EvaluateBudget, EvaluateTransaction:
		if r.EntityID == uuid.Nil {
			return fmt.Errorf("%s request without entity id", r.Kind)
		}
	case EvaluateRules, EvaluateUser:
		if r.UserID == uuid.Nil {
			return fmt.Errorf("%s request: %w", r.Kind, core.ErrMissingUser)
		}
	default:
		return errors.New("unknown evaluation kind " + string(r.Kind))
	}
	return nil
}

func (r *EvaluationRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func EvaluationRequestFromJSON(data []byte) (*EvaluationRequest, error) {
	var req EvaluationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// FactsMessage carries one user's spending facts to the narrative service.
type FactsMessage struct {
	Facts     core.SpendingFacts `json:"facts"`
	Timestamp time.Time          `json:"timestamp"`
}

func NewFactsMessage(facts core.SpendingFacts) *FactsMessage {
	return &FactsMessage{Facts: facts, Timestamp: time.Now()}
}

func (m *FactsMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FactsMessageFromJSON(data []byte) (*FactsMessage, error) {
	var msg FactsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
