// Package l1submit replays a slot's received attestations to decide
// whether the proposer's block reached L1 in time, and if so, in which
// Ethereum slot it was included.
package l1submit

import (
	"math"
	"sort"

	"github.com/aztecprotocol/slashsim/config"
	"github.com/aztecprotocol/slashsim/eventlog"
)

const proposerOwnAttestationTimeMs = 100.0

// ReasonInsufficientAttestations and ReasonInclusionTooLate are the two
// failure_reason values the post-processor can emit.
const (
	ReasonInsufficientAttestations = "insufficient_attestations"
	ReasonInclusionTooLate         = "inclusion_too_late"
)

type candidate struct {
	attester string
	timeMs   float64
}

// Process inspects the AttestationReceivedP2P events in slotEvents that
// are addressed to proposer, keeps those arriving before the L1
// submission deadline (measured from slotStart), and returns the
// L1Submission event, plus an L1Finalized event on success.
func Process(cfg *config.Config, slot int, slotStart float64, proposer string, slotEvents []eventlog.Event) []eventlog.Event {
	threshold := cfg.Threshold()
	deadline := float64(cfg.L1SubmissionDeadlineMs)
	slotDuration := cfg.SlotDurationMs()
	ethSlotMs := cfg.EthSlotDurationMs()

	candidates := []candidate{{attester: proposer, timeMs: proposerOwnAttestationTimeMs}}
	for _, e := range slotEvents {
		if e.Kind != eventlog.AttestationReceivedP2P || e.Subject != proposer {
			continue
		}
		attester, _ := e.Data["attester"].(string)
		if attester == "" {
			continue
		}
		candidates = append(candidates, candidate{attester: attester, timeMs: e.TimeMs - slotStart})
	}

	// Earliest-wins dedup per attester (explicit, per the open-question
	// decision: the propagator may deliver an attestation to the
	// proposer along more than one path).
	earliest := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if cur, ok := earliest[c.attester]; !ok || c.timeMs < cur {
			earliest[c.attester] = c.timeMs
		}
	}
	var accepted []candidate
	for attester, t := range earliest {
		if t < deadline {
			accepted = append(accepted, candidate{attester: attester, timeMs: t})
		}
	}
	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].timeMs != accepted[j].timeMs {
			return accepted[i].timeMs < accepted[j].timeMs
		}
		return accepted[i].attester < accepted[j].attester
	})

	if len(accepted) < threshold {
		return []eventlog.Event{{
			TimeMs: slotStart + deadline,
			Slot:   slot,
			Kind:   eventlog.L1Submission,
			Actor:  proposer,
			Data: map[string]any{
				"status":         "failed",
				"failure_reason": ReasonInsufficientAttestations,
				"committee_size": cfg.CommitteeSize,
				"attestation_count": len(accepted),
			},
		}}
	}

	thresholdEntries := accepted[:threshold]
	attesters := make([]string, threshold)
	for i, c := range thresholdEntries {
		attesters[i] = c.attester
	}
	thresholdTime := thresholdEntries[threshold-1].timeMs

	abs := slotStart + thresholdTime
	ethSlot := math.Floor(abs / ethSlotMs)
	offset := abs - ethSlot*ethSlotMs
	nextSlot := ethSlot + 1
	if offset > 4000 {
		nextSlot++
	}
	inclusionTime := nextSlot*ethSlotMs - slotStart

	submission := eventlog.Event{
		TimeMs: slotStart + thresholdTime,
		Slot:   slot,
		Kind:   eventlog.L1Submission,
		Actor:  proposer,
		Data: map[string]any{
			"committee_size":     cfg.CommitteeSize,
			"attesters":          attesters,
			"attestation_count":  len(attesters),
			"submission_time_ms": thresholdTime,
			"ethereum_slot":      int(ethSlot),
			"time_into_eth_slot": offset,
		},
	}

	if inclusionTime <= slotDuration {
		submission.Data["status"] = "success"
		submission.Data["ethereum_block"] = int(nextSlot)
		submission.Data["inclusion_time_ms"] = inclusionTime
		finalized := eventlog.Event{
			TimeMs: slotStart + inclusionTime,
			Slot:   slot,
			Kind:   eventlog.L1Finalized,
			Actor:  proposer,
			Data: map[string]any{
				"attesters":         attesters,
				"ethereum_block":    int(nextSlot),
				"inclusion_time_ms": inclusionTime,
			},
		}
		return []eventlog.Event{submission, finalized}
	}

	submission.Data["status"] = "failed"
	submission.Data["failure_reason"] = ReasonInclusionTooLate
	submission.Data["inclusion_time_ms"] = inclusionTime
	return []eventlog.Event{submission}
}
