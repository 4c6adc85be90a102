package domain

import "time"

// PlanTarget selects which configured chat a plan grants access to.
type PlanTarget int

const (
	// TargetVIPChannel is the private VIP channel.
	TargetVIPChannel PlanTarget = iota
	// TargetChatGroup is the paid chat group.
	TargetChatGroup
)

// Plan describes one purchasable access plan. Plan codes are persisted inside
// invoice payloads and inline keyboards, so they must stay stable.
type Plan struct {
	Code   string
	Title  string
	Days   int
	Target PlanTarget
}

// Duration returns the access period of the plan.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.Days) * 24 * time.Hour
}

var plans = map[string]Plan{
	"vip_30d":  {Code: "vip_30d", Title: "VIP 30 days", Days: 30, Target: TargetVIPChannel},
	"chat_10d": {Code: "chat_10d", Title: "Chat 10 days", Days: 10, Target: TargetChatGroup},
	"chat_20d": {Code: "chat_20d", Title: "Chat 20 days", Days: 20, Target: TargetChatGroup},
	"chat_30d": {Code: "chat_30d", Title: "Chat 30 days", Days: 30, Target: TargetChatGroup},
}

// PlanByCode resolves a stable plan code. The second result is false for
// unknown codes.
func PlanByCode(code string) (Plan, bool) {
	p, ok := plans[code]
	return p, ok
}

// PlanCodes returns all known plan codes. Order is unspecified.
func PlanCodes() []string {
	out := make([]string, 0, len(plans))
	for c := range plans {
		out = append(out, c)
	}
	return out
}
