package assign

import (
	"fmt"
	"strings"
)

// Strategy decides which (user, template) pairs receive an assignment.
type Strategy string

const (
	StrategyDistribute  Strategy = "distribute"
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyLoadBalance Strategy = "load-balance"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyDistribute, StrategyRoundRobin, StrategyLoadBalance}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StrategyDistribute, StrategyRoundRobin, StrategyLoadBalance:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// ShouldAssign reports whether the template at taskIndex goes to the user at
// userIndex. currentLoad is that user's count of assignments already existing
// today and minLoad the minimum of those counts over the roster, both taken
// before the batch starts. Only load-balance looks at the loads.
//
// distribute evaluates (userIndex+taskIndex)%userCount == userIndex, which
// reduces to taskIndex%userCount == 0: only templates whose index is a
// multiple of the roster size are assigned, and they go to every user.
// The formula is kept as is.
//
// load-balance assigns whenever currentLoad <= minLoad. minLoad is fixed for
// the batch, so users tied at the minimum all receive the same template.
func (s Strategy) ShouldAssign(userIndex, taskIndex, userCount, currentLoad, minLoad int) bool {
	if userCount <= 0 {
		return false
	}
	switch s {
	case StrategyDistribute:
		return (userIndex+taskIndex)%userCount == userIndex
	case StrategyRoundRobin:
		return taskIndex%userCount == userIndex
	case StrategyLoadBalance:
		return currentLoad <= minLoad
	}
	return false
}

func (s Strategy) String() string {
	return string(s)
}
