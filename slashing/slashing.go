// Package slashing replays a finished simulation's event stream to
// drive the slashing-signalling game: each slot's online proposer scores
// its own freshly derived inactivity proposal against every proposal
// already signalled, and the engine's own growing signal log records
// the winner.
package slashing

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aztecprotocol/slashsim/committee"
	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/crypto"
	"github.com/aztecprotocol/slashsim/eventlog"
)

// agreementThreshold is the fraction_missed a validator must meet or
// exceed in some lookback epoch for the proposer to agree it belongs in
// a proposal.
const agreementThreshold = 0.75

// fullyInactiveThreshold is the fraction_missed a validator must equal
// to be a candidate for a new proposal.
const fullyInactiveThreshold = 1.0

// Heuristic selects a scoring strategy for proposal evaluation.
type Heuristic int

const (
	// CurrentHeuristic scores by proposal size alone when the proposer
	// agrees, discarding disagreed proposals.
	CurrentHeuristic Heuristic = iota
	// RoundAwareHeuristic additionally gates on whether a proposal can
	// still reach quorum within its round, and weights by vote count.
	RoundAwareHeuristic
)

// Proposal is a canonical, sorted set of validator IDs to penalise.
type Proposal struct {
	ID      string
	Members []string
}

func newProposal(ids []string) Proposal {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return Proposal{ID: proposalID(sorted), Members: sorted}
}

func proposalID(sortedIDs []string) string {
	return crypto.TruncatedHash([]byte(strings.Join(sortedIDs, ",")), 4)
}

// Signal is one row of the signal log: a proposer's vote for a specific
// proposal within a round.
type Signal struct {
	Slot      int
	Round     int
	Proposer  string
	Proposal  Proposal
}

// Engine runs the slashing-signalling replay over a completed event
// store and committee history.
type Engine struct {
	cfg        *config.Config
	store      *eventlog.Store
	committees map[int]*committee.Committee
	heuristic  Heuristic

	log                 []Signal
	epochSummary        map[int]map[string]float64
	proposerViewSummary map[string]map[int]map[string]float64 // proposer -> epoch -> validator -> fraction_missed, as that proposer observed it
	seenProposals       map[string]Proposal // id -> proposal, ever signalled
	votesInRound        map[int]map[string]int // round -> proposal id -> vote count
}

// New creates an Engine for replaying the slashing game with the given
// scoring heuristic.
func New(cfg *config.Config, store *eventlog.Store, committees map[int]*committee.Committee, h Heuristic) *Engine {
	return &Engine{
		cfg:                 cfg,
		store:               store,
		committees:          committees,
		heuristic:           h,
		epochSummary:        make(map[int]map[string]float64),
		proposerViewSummary: make(map[string]map[int]map[string]float64),
		seenProposals:       make(map[string]Proposal),
		votesInRound:        make(map[int]map[string]int),
	}
}

// Log returns the full, ordered signal log produced by Run.
func (e *Engine) Log() []Signal { return e.log }

// Run replays every slot of the simulation in order, producing the
// signal log.
func (e *Engine) Run() []Signal {
	total := e.cfg.TotalSlots()
	for slot := 0; slot < total; slot++ {
		e.processSlot(slot)
	}
	return e.log
}

func (e *Engine) processSlot(slot int) {
	epoch := slot / e.cfg.SlotsPerEpoch
	c := e.committees[epoch]
	if c == nil {
		return
	}
	proposer, onlineProposer := e.onlineProposerFor(slot, c)
	if !onlineProposer {
		return
	}

	candidates := e.candidateProposals(epoch)
	if len(candidates) == 0 {
		return
	}

	round := slot / e.cfg.RoundSize
	slotInRound := slot % e.cfg.RoundSize
	slotsRemaining := e.cfg.RoundSize - slotInRound - 1

	pq := &scoreHeap{}
	heap.Init(pq)
	for _, p := range candidates {
		votes := e.votesInRound[round][p.ID]
		score, ok := e.score(epoch, p, proposer, votes, slotsRemaining)
		if !ok || score >= 0 {
			continue
		}
		heap.Push(pq, scoredProposal{score: score, proposal: p})
	}
	if pq.Len() == 0 {
		return
	}
	best := heap.Pop(pq).(scoredProposal)

	e.seenProposals[best.proposal.ID] = best.proposal
	if e.votesInRound[round] == nil {
		e.votesInRound[round] = make(map[string]int)
	}
	e.votesInRound[round][best.proposal.ID]++

	e.log = append(e.log, Signal{
		Slot:     slot,
		Round:    round,
		Proposer: proposer,
		Proposal: best.proposal,
	})
}

// onlineProposerFor returns the slot's scheduled proposer and whether it
// was online at the slot start, per the NodeOnline/NodeOffline replay.
func (e *Engine) onlineProposerFor(slot int, c *committee.Committee) (string, bool) {
	proposer := c.ProposerSchedule[slot]
	online := true
	for _, ev := range e.store.EventsForValidator(proposer) {
		if ev.Slot > slot {
			continue
		}
		if ev.Kind == eventlog.NodeOnline && ev.Actor == proposer {
			online = true
		}
		if ev.Kind == eventlog.NodeOffline && ev.Actor == proposer {
			online = false
		}
	}
	return proposer, online
}

// candidateProposals returns this slot's freshly derived proposal (if
// any) plus every distinct proposal already present in the signal log,
// in a deterministic order: map iteration order is not reproducible
// across runs, so seenProposals is walked by sorted proposal ID rather
// than range order.
func (e *Engine) candidateProposals(epoch int) []Proposal {
	var candidates []Proposal
	fresh, hasFresh := e.newProposal(epoch)
	if hasFresh {
		candidates = append(candidates, fresh)
	}
	ids := make([]string, 0, len(e.seenProposals))
	for id := range e.seenProposals {
		if hasFresh && id == fresh.ID {
			continue // already added above
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		candidates = append(candidates, e.seenProposals[id])
	}
	return candidates
}

// newProposal computes the fully-inactive member set of the prior
// epoch, if one exists.
func (e *Engine) newProposal(epoch int) (Proposal, bool) {
	if epoch == 0 {
		return Proposal{}, false
	}
	prevEpoch := epoch - 1
	prevCommittee := e.committees[prevEpoch]
	if prevCommittee == nil {
		return Proposal{}, false
	}
	summary := e.summaryFor(prevEpoch, prevCommittee)
	var ids []string
	for id, frac := range summary {
		if frac >= fullyInactiveThreshold {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Proposal{}, false
	}
	return newProposal(ids), true
}

// summaryFor computes, for every member of the committee, the fraction
// of that epoch's proposed slots lacking an AttestationCreated by that
// member. Slots where no block was proposed don't count against anyone.
// Results are cached per epoch since the replay revisits epochs across
// many slots.
func (e *Engine) summaryFor(epoch int, c *committee.Committee) map[string]float64 {
	if cached, ok := e.epochSummary[epoch]; ok {
		return cached
	}
	start := epoch * e.cfg.SlotsPerEpoch
	end := start + e.cfg.SlotsPerEpoch

	var proposedSlots []int
	for slot := start; slot < end; slot++ {
		for _, ev := range e.store.EventsForSlot(slot) {
			if ev.Kind == eventlog.BlockProposed {
				proposedSlots = append(proposedSlots, slot)
				break
			}
		}
	}

	attested := make(map[int]map[string]bool, len(proposedSlots))
	for _, slot := range proposedSlots {
		attested[slot] = make(map[string]bool)
		for _, ev := range e.store.EventsForSlot(slot) {
			if ev.Kind == eventlog.AttestationCreated {
				attested[slot][ev.Actor] = true
			}
		}
	}

	summary := make(map[string]float64, len(c.Members))
	for _, member := range c.Members {
		if len(proposedSlots) == 0 {
			summary[member] = 0
			continue
		}
		missed := 0
		for _, slot := range proposedSlots {
			if !attested[slot][member] {
				missed++
			}
		}
		summary[member] = float64(missed) / float64(len(proposedSlots))
	}
	e.epochSummary[epoch] = summary
	return summary
}

// agrees reports whether every member of p has fraction_missed >= 0.75
// in at least one of proposer's last lookback_epochs completed epochs,
// as observed from proposer's own event view rather than the global
// replay: a partition or dropped packets can keep proposer from ever
// seeing an attestation that was in fact created, so its agreement
// basis must differ from new_proposal's global AttestationCreated count.
func (e *Engine) agrees(epoch int, p Proposal, proposer string) bool {
	lo := epoch - e.cfg.LookbackEpochs
	if lo < 0 {
		lo = 0
	}
	for _, id := range p.Members {
		metInAnyEpoch := false
		for ep := lo; ep < epoch; ep++ {
			c := e.committees[ep]
			if c == nil || !c.IsMember(id) {
				continue
			}
			if e.proposerViewSummaryFor(proposer, ep, c)[id] >= agreementThreshold {
				metInAnyEpoch = true
				break
			}
		}
		if !metInAnyEpoch {
			return false
		}
	}
	return len(p.Members) > 0
}

// proposerViewSummaryFor computes the same fraction_missed quantity as
// summaryFor, but restricted to what proposer itself observed by the end
// of epoch ep: its own creations (ViewAt's BlockProposed/
// AttestationCreated/L1Submission actor events) plus whatever reached it
// over the gossip network (ViewAt's BlockReceivedP2P/AttestationReceivedP2P
// subject events). Results are cached per (proposer, epoch).
func (e *Engine) proposerViewSummaryFor(proposer string, epoch int, c *committee.Committee) map[string]float64 {
	if byEpoch, ok := e.proposerViewSummary[proposer]; ok {
		if cached, ok := byEpoch[epoch]; ok {
			return cached
		}
	}

	start := epoch * e.cfg.SlotsPerEpoch
	end := start + e.cfg.SlotsPerEpoch
	asOf := float64(end) * e.cfg.SlotDurationMs()

	proposedSlots := make(map[int]bool)
	attested := make(map[int]map[string]bool)
	for _, ev := range e.store.ViewAt(proposer, asOf) {
		if ev.Slot < start || ev.Slot >= end {
			continue
		}
		switch ev.Kind {
		case eventlog.BlockProposed, eventlog.BlockReceivedP2P:
			proposedSlots[ev.Slot] = true
		case eventlog.AttestationCreated:
			if attested[ev.Slot] == nil {
				attested[ev.Slot] = make(map[string]bool)
			}
			attested[ev.Slot][ev.Actor] = true
		case eventlog.AttestationReceivedP2P:
			attester, _ := ev.Data["attester"].(string)
			if attester == "" {
				continue
			}
			if attested[ev.Slot] == nil {
				attested[ev.Slot] = make(map[string]bool)
			}
			attested[ev.Slot][attester] = true
		}
	}

	summary := make(map[string]float64, len(c.Members))
	for _, member := range c.Members {
		if len(proposedSlots) == 0 {
			summary[member] = 0
			continue
		}
		missed := 0
		for slot := range proposedSlots {
			if !attested[slot][member] {
				missed++
			}
		}
		summary[member] = float64(missed) / float64(len(proposedSlots))
	}

	if e.proposerViewSummary[proposer] == nil {
		e.proposerViewSummary[proposer] = make(map[int]map[string]float64)
	}
	e.proposerViewSummary[proposer][epoch] = summary
	return summary
}

func (e *Engine) score(epoch int, p Proposal, proposer string, existingVotes, slotsRemaining int) (float64, bool) {
	if !e.agrees(epoch, p, proposer) {
		return 0, false
	}
	switch e.heuristic {
	case RoundAwareHeuristic:
		if 1+existingVotes+slotsRemaining <= e.cfg.RoundSize/2 {
			return 0, false
		}
		return -math.Pow(float64(existingVotes+1), 0.1) * float64(len(p.Members)), true
	default:
		return -float64(len(p.Members)), true
	}
}

type scoredProposal struct {
	score    float64
	proposal Proposal
}

// scoreHeap is a min-heap over scores, used to pick the best (lowest,
// i.e. most negative) candidate proposal for a slot — the same
// selection container/heap Pop/Push pattern as Python's heapq. Ties
// break on proposal ID so the winner never depends on push order, which
// itself must never depend on map iteration order (see
// candidateProposals).
type scoreHeap []scoredProposal

func (h scoreHeap) Len() int { return len(h) }
func (h scoreHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].proposal.ID < h[j].proposal.ID
}
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x any)         { *h = append(*h, x.(scoredProposal)) }
func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// String renders a Proposal for logging/debugging.
func (p Proposal) String() string {
	return fmt.Sprintf("%s%v", p.ID, p.Members)
}
