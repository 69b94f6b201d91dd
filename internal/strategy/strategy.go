// Package strategy evaluates ordered lists of named extraction strategies,
// stopping at the first one that produces a value. A strategy that panics
// counts as a miss and evaluation moves on to the next one.
package strategy

import "fmt"

// Miss reasons reported in Outcome.Reason.
const (
	ReasonEmptyChain = "no strategies configured"
	ReasonNoMatch    = "no strategy matched"
)

// Strategy is one named way of pulling an Out from an In.
type Strategy[In, Out any] struct {
	Name string
	Fn   func(In) (Out, bool)
}

// New builds a Strategy.
func New[In, Out any](name string, fn func(In) (Out, bool)) Strategy[In, Out] {
	return Strategy[In, Out]{Name: name, Fn: fn}
}

// Outcome explains how a chain resolved.
type Outcome struct {
	OK       bool     `json:"ok"`
	Strategy string   `json:"strategy,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Result is the value produced by a chain together with its Outcome.
type Result[Out any] struct {
	Value Out
	Outcome
}

// Chain is a priority-ordered list of strategies.
type Chain[In, Out any] []Strategy[In, Out]

// Resolve runs the strategies in order and returns the first success.
func (c Chain[In, Out]) Resolve(in In) Result[Out] {
	var res Result[Out]
	if len(c) == 0 {
		res.Reason = ReasonEmptyChain
		return res
	}
	for _, s := range c {
		val, ok, err := run(s, in)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if ok {
			res.Value = val
			res.OK = true
			res.Strategy = s.Name
			return res
		}
	}
	res.Reason = ReasonNoMatch
	return res
}

func run[In, Out any](s Strategy[In, Out], in In) (val Out, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero Out
			val, ok, err = zero, false, fmt.Errorf("%s: panic: %v", s.Name, r)
		}
	}()
	if s.Fn == nil {
		return val, false, nil
	}
	val, ok = s.Fn(in)
	return val, ok, nil
}
