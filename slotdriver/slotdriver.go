// Package slotdriver orchestrates a single slot: validator status
// updates, block proposal, block and attestation propagation, and the
// L1 submission post-process, emitting every event the slot produces
// into the shared event store.
package slotdriver

import (
	"math/rand"
	"sort"

	"github.com/aztecprotocol/slashsim/committee"
	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
	"github.com/aztecprotocol/slashsim/gossip"
	"github.com/aztecprotocol/slashsim/l1submit"
	"github.com/aztecprotocol/slashsim/validatorset"
)

// proposerAttestationDelayMs is the fixed time after slot start at which
// a proposer attests to its own block.
const proposerAttestationDelayMs = 100.0

// Driver runs slots against a fixed validator set and topology, emitting
// into a shared event store. It carries no state of its own across
// slots beyond what is passed in by the caller (the simulator owns
// last_block_hash and the online vector, per the design note that all
// global mutable state belongs to a single top-level value).
type Driver struct {
	cfg   *config.Config
	store *eventlog.Store
	set   *validatorset.Set
	topo  *gossip.Topology
}

// New creates a Driver.
func New(cfg *config.Config, store *eventlog.Store, set *validatorset.Set, topo *gossip.Topology) *Driver {
	return &Driver{cfg: cfg, store: store, set: set, topo: topo}
}

// RunSlot executes all six steps of one slot and returns the possibly
// updated last_block_hash and whether a block was proposed.
func (d *Driver) RunSlot(slot int, c *committee.Committee, lastBlockHash string) (newLastBlockHash string, blockProposed bool) {
	slotStart := float64(slot) * d.cfg.SlotDurationMs()
	online := d.runStatusUpdatePhase(slot, slotStart)

	proposer := c.ProposerSchedule[slot]
	proposerValidator := d.set.ByID[proposer]

	newLastBlockHash = lastBlockHash
	if !online[proposer] || !proposerValidator.WillPropose(slot) {
		d.store.Append(eventlog.Event{
			TimeMs: slotStart + d.cfg.SlotDurationMs(),
			Slot:   slot,
			Kind:   eventlog.SlotEnd,
			Data:   map[string]any{"block_proposed": false},
		})
		return newLastBlockHash, false
	}

	txCount := 1 + slot%200
	block := newBlock(slot, proposer, lastBlockHash, txCount, slotStart)
	d.store.Append(eventlog.Event{
		TimeMs: slotStart,
		Slot:   slot,
		Kind:   eventlog.BlockProposed,
		Actor:  proposer,
		Data: map[string]any{
			"block_hash":  block.Hash,
			"parent_hash": block.ParentHash,
			"transactions": block.TxCount,
			"proposer":    proposer,
		},
	})
	newLastBlockHash = block.Hash

	blockResult := gossip.Propagate(d.topo, proposer, online, gossip.BlockMaxHops, false, d.cfg.PacketLossRate, rand.New(rand.NewSource(blockPropagationSeed(d.cfg.RandomSeed, slot))))

	blockEvents := make([]eventlog.Event, 0, len(blockResult.Trace))
	for _, delivery := range blockResult.Trace {
		blockEvents = append(blockEvents, eventlog.Event{
			TimeMs:  slotStart + delivery.DeliveryTime,
			Slot:    slot,
			Kind:    eventlog.BlockReceivedP2P,
			Actor:   delivery.Sender,
			Subject: delivery.Receiver,
			Data: map[string]any{
				"proposer":         proposer,
				"hops":             delivery.Hops,
				"delivery_time_ms": delivery.DeliveryTime,
			},
		})
	}
	d.store.AppendBatch(blockEvents)

	attestationEvents := d.runAttestationPhase(slot, slotStart, c, proposer, block, online, blockResult)
	d.store.AppendBatch(attestationEvents)

	slotEvents := d.store.EventsForSlot(slot)
	l1Events := l1submit.Process(d.cfg, slot, slotStart, proposer, slotEvents)
	d.store.AppendBatch(l1Events)

	d.store.Append(eventlog.Event{
		TimeMs: slotStart + d.cfg.SlotDurationMs(),
		Slot:   slot,
		Kind:   eventlog.SlotEnd,
		Data:   map[string]any{"block_proposed": true},
	})

	return newLastBlockHash, true
}

// runStatusUpdatePhase runs the once-per-slot online/offline transition
// for every validator, emits the flips, and returns the resulting online
// vector.
func (d *Driver) runStatusUpdatePhase(slot int, slotStart float64) map[string]bool {
	online := make(map[string]bool, len(d.set.Order))
	var flips []eventlog.Event
	for _, v := range d.set.Order {
		flipped, nowOnline := v.UpdateStatus()
		online[v.ID] = v.IsOnline
		if flipped {
			kind := eventlog.NodeOffline
			if nowOnline {
				kind = eventlog.NodeOnline
			}
			flips = append(flips, eventlog.Event{TimeMs: slotStart, Slot: slot, Kind: kind, Actor: v.ID})
		}
	}
	d.store.AppendBatch(flips)
	return online
}

// runAttestationPhase emits the proposer's immediate self-attestation,
// then for every other committee member that received the block and
// decides to attest, emits its AttestationCreated and propagates it.
func (d *Driver) runAttestationPhase(slot int, slotStart float64, c *committee.Committee, proposer string, block Block, online map[string]bool, blockResult *gossip.Result) []eventlog.Event {
	var events []eventlog.Event

	proposerAttestation := newAttestation(proposer, slot, block.Hash, 0)
	events = append(events, eventlog.Event{
		TimeMs: slotStart + proposerAttestationDelayMs,
		Slot:   slot,
		Kind:   eventlog.AttestationCreated,
		Actor:  proposer,
		Data: map[string]any{
			"block_hash": proposerAttestation.BlockHash,
			"proposer":   proposer,
			"signature":  proposerAttestation.Signature,
		},
	})

	deadline := float64(d.cfg.L1SubmissionDeadlineMs)
	attesters := c.Attesters(slot)
	sort.Strings(attesters)

	for _, memberID := range attesters {
		member := d.set.ByID[memberID]
		delivery, reached := blockResult.Reached(memberID)
		if !reached {
			continue
		}
		timeRemaining := deadline - delivery.DeliveryTime
		if !member.WillAttest(proposer, timeRemaining) {
			continue
		}
		responseDelay := member.ResponseDelayMs()
		attestationTime := delivery.DeliveryTime + responseDelay
		attestation := newAttestation(memberID, slot, block.Hash, responseDelay)

		events = append(events, eventlog.Event{
			TimeMs: slotStart + attestationTime,
			Slot:   slot,
			Kind:   eventlog.AttestationCreated,
			Actor:  memberID,
			Data: map[string]any{
				"block_hash": attestation.BlockHash,
				"proposer":   proposer,
				"delay_ms":   attestation.PropagationDelayMs,
				"signature":  attestation.Signature,
			},
		})

		attRng := rand.New(rand.NewSource(attestationPropagationSeed(d.cfg.RandomSeed, slot, member.Index)))
		attResult := gossip.Propagate(d.topo, memberID, online, gossip.AttestationMaxHops, true, d.cfg.PacketLossRate, attRng)
		for _, delivery := range attResult.Trace {
			events = append(events, eventlog.Event{
				TimeMs:  slotStart + attestationTime + delivery.DeliveryTime,
				Slot:    slot,
				Kind:    eventlog.AttestationReceivedP2P,
				Actor:   delivery.Sender,
				Subject: delivery.Receiver,
				Data: map[string]any{
					"attester":         memberID,
					"proposer":         proposer,
					"hops":             delivery.Hops,
					"delivery_time_ms": delivery.DeliveryTime,
				},
			})
		}
	}
	return events
}

// blockPropagationSeed and attestationPropagationSeed derive the
// per-slot packet-loss PRNG used by the propagator's flood, distinct
// from the committee/proposer-selection seed that shares the same slot
// number. Each attesting member gets its own seed so that one member's
// propagation draws never perturb another's.
func blockPropagationSeed(baseSeed int64, slot int) int64 {
	return committee.SlotSeed(baseSeed, slot) + 7919
}

func attestationPropagationSeed(baseSeed int64, slot, memberIndex int) int64 {
	return committee.SlotSeed(baseSeed, slot) + 15000 + int64(memberIndex)
}
