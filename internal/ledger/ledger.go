// Package ledger accumulates per-round point deltas for one session and
// answers standings queries. It is owned by the session state and is not
// safe for concurrent use on its own.
package ledger

import "sort"

type Entry struct {
	ID    string
	Score int
	Rank  int
}

type Ledger struct {
	order     []string
	deltas    map[string][]delta
	totals    map[string]int
	finalized bool
}

type delta struct {
	round  int
	points int
}

func New() *Ledger {
	return &Ledger{
		deltas: map[string][]delta{},
		totals: map[string]int{},
	}
}

// Register records a participant in join order. Join order is the tie-break
// in standings, so registration happens exactly once per identity.
func (l *Ledger) Register(id string) {
	if _, ok := l.totals[id]; ok {
		return
	}
	l.order = append(l.order, id)
	l.totals[id] = 0
}

// Add appends one round's points for a participant. A round is counted at
// most once per participant, so a retried round close cannot double-score.
// Negative deltas are not a thing in this game; they are clamped to zero.
func (l *Ledger) Add(id string, round, points int) {
	if _, ok := l.totals[id]; !ok {
		return
	}
	for _, d := range l.deltas[id] {
		if d.round == round {
			return
		}
	}
	if points < 0 {
		points = 0
	}
	l.deltas[id] = append(l.deltas[id], delta{round: round, points: points})
	l.totals[id] += points
}

func (l *Ledger) Total(id string) int {
	return l.totals[id]
}

// Standings returns all registered participants sorted by score descending;
// ties keep earliest-join order.
func (l *Ledger) Standings() []Entry {
	entries := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, Entry{ID: id, Score: l.totals[id]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Finalize freezes the ledger and returns the final standings. The first
// call reports first=true; later calls return the same standings with
// first=false so a repeated completion handoff stays a no-op.
func (l *Ledger) Finalize() (entries []Entry, first bool) {
	entries = l.Standings()
	first = !l.finalized
	l.finalized = true
	return entries, first
}

func (l *Ledger) Finalized() bool {
	return l.finalized
}
