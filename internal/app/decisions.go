package app

import "math"

// Decision is our side of the host tie-break with one peer. Both sides roll
// a value in {0, 1, 2}; the higher roll hosts and an equal roll is rolled
// again.
type Decision struct {
	Value int
	Host  bool
	User  bool
}

// roll replaces the decision for peerID with a fresh one.
func (a *Application) roll(peerID string) *Decision {
	d := &Decision{Value: int(math.Round(a.rand() * 2))}
	a.decisions[peerID] = d
	return d
}

type decisionCounts struct {
	host, user, unknown int
}

func (a *Application) countDecisions() decisionCounts {
	var c decisionCounts
	for _, d := range a.decisions {
		switch {
		case d.Host:
			c.host++
		case d.User:
			c.user++
		default:
			c.unknown++
		}
	}
	return c
}
