package main

import (
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"

	"github.com/google/uuid"
)

// command is one parsed invocation. Exactly one action is set.
type command struct {
	kind       amqp.EvaluationKind
	user       uuid.UUID
	entity     uuid.UUID
	at         time.Time
	listAlerts bool
	markRead   uuid.UUID
}

func parseCommand(user, budget string, rules bool, tx string, alerts bool, markRead, at string, now time.Time) (command, error) {
	var cmd command
	actions := 0

	if user != "" {
		id, err := uuid.Parse(user)
		if err != nil {
			return cmd, fmt.Errorf("invalid -user %q: %w", user, err)
		}
		cmd.user = id
	}

	cmd.at = now
	if at != "" {
		d, err := core.ParseDate(core.DateLayout, at)
		if err != nil {
			return cmd, fmt.Errorf("invalid -at %q: %w", at, err)
		}
		cmd.at = d.Time
	}

	if budget != "" {
		id, err := uuid.Parse(budget)
		if err != nil {
			return cmd, fmt.Errorf("invalid -budget %q: %w", budget, err)
		}
		cmd.kind, cmd.entity = amqp.EvaluateBudget, id
		actions++
	}
	if rules {
		cmd.kind = amqp.EvaluateRules
		actions++
	}
	if tx != "" {
		id, err := uuid.Parse(tx)
		if err != nil {
			return cmd, fmt.Errorf("invalid -transaction %q: %w", tx, err)
		}
		cmd.kind, cmd.entity = amqp.EvaluateTransaction, id
		actions++
	}
	if alerts {
		cmd.listAlerts = true
		actions++
	}
	if markRead != "" {
		id, err := uuid.Parse(markRead)
		if err != nil {
			return cmd, fmt.Errorf("invalid -mark-read %q: %w", markRead, err)
		}
		cmd.markRead = id
		actions++
	}

	switch {
	case actions > 1:
		return cmd, errors.New("choose one of -budget, -rules, -transaction, -alerts, -mark-read")
	case actions == 0:
		// A bare -user sweeps every budget and rule of the user.
		cmd.kind = amqp.EvaluateUser
	}

	needsUser := cmd.kind == amqp.EvaluateRules || cmd.kind == amqp.EvaluateUser || cmd.listAlerts
	if needsUser && cmd.user == uuid.Nil {
		return cmd, core.ErrMissingUser
	}
	return cmd, nil
}
