// Package quota holds plan limits and the per-user active document counter.
package quota

import (
	"context"
	"strings"
)

// Unlimited marks a limit that is never reached.
const Unlimited = -1

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// Limits are the resource limits of one plan.
type Limits struct {
	Projects     int
	Chats        int
	Documents    int
	DocsPerScope int
}

var planLimits = map[Plan]Limits{
	PlanFree:    {Projects: 1, Chats: 3, Documents: 3, DocsPerScope: 1},
	PlanPro:     {Projects: 10, Chats: Unlimited, Documents: 30, DocsPerScope: 5},
	PlanPremium: {Projects: Unlimited, Chats: Unlimited, Documents: Unlimited, DocsPerScope: 10},
}

// ParsePlan maps unknown or empty plan names to free.
func ParsePlan(s string) Plan {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := planLimits[p]; ok {
		return p
	}
	return PlanFree
}

func LimitsFor(p Plan) Limits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// Reached reports whether current has hit limit.
func Reached(current, limit int) bool {
	return limit != Unlimited && current >= limit
}

// Ledger receives document created and purged signals for a user.
type Ledger interface {
	Active(ctx context.Context, userID string) (int, error)
	Increment(ctx context.Context, userID string, n int) error
	// Decrement never takes the counter below zero.
	Decrement(ctx context.Context, userID string, n int) error
	// Set overwrites a counter with a recomputed value.
	Set(ctx context.Context, userID string, n int) error
	Users(ctx context.Context) ([]string, error)
}
