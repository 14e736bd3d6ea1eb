// Package committee implements deterministic per-epoch committee
// selection and proposer scheduling.
package committee

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/aztecprotocol/slashsim/validatorset"
)

// ErrPoolTooSmall is returned when the validator pool cannot fill a
// committee of the configured size.
var ErrPoolTooSmall = errors.New("validator pool too small for committee size")

// Committee is the epoch's randomly selected member set plus the
// per-slot proposer assignment computed for every slot in that epoch.
type Committee struct {
	Epoch            int
	Members          []string // ordered, as drawn
	ProposerSchedule map[int]string
}

// EpochSeed returns the deterministic topology/committee PRNG seed for
// drawing an epoch's committee.
func EpochSeed(baseSeed int64, epoch int) int64 {
	return baseSeed + int64(epoch)*1000
}

// SlotSeed returns the deterministic PRNG seed for picking a single
// slot's proposer.
func SlotSeed(baseSeed int64, slot int) int64 {
	return baseSeed + int64(slot)*10
}

// Draw selects committeeSize members from pool without replacement
// using an explicit Fisher-Yates shuffle of the whole pool seeded by
// EpochSeed, keeping the first committeeSize entries, then computes a proposer for every slot in the epoch, each seeded
// independently via SlotSeed. Both uses are topology/committee-role
// PRNGs, kept separate from any validator's own behavioural PRNG.
func Draw(baseSeed int64, epoch, committeeSize, slotsPerEpoch int, set *validatorset.Set) (*Committee, error) {
	pool := set.IDs()
	if len(pool) < committeeSize {
		return nil, fmt.Errorf("%w: pool=%d committee_size=%d", ErrPoolTooSmall, len(pool), committeeSize)
	}

	rng := rand.New(rand.NewSource(EpochSeed(baseSeed, epoch)))
	shuffled := append([]string(nil), pool...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	members := shuffled[:committeeSize]

	c := &Committee{
		Epoch:            epoch,
		Members:          members,
		ProposerSchedule: make(map[int]string, slotsPerEpoch),
	}
	epochStartSlot := epoch * slotsPerEpoch
	for offset := 0; offset < slotsPerEpoch; offset++ {
		slot := epochStartSlot + offset
		slotRng := rand.New(rand.NewSource(SlotSeed(baseSeed, slot)))
		proposer := members[slotRng.Intn(len(members))]
		c.ProposerSchedule[slot] = proposer
	}
	return c, nil
}

// IsMember reports whether id is in the committee.
func (c *Committee) IsMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Attesters returns the committee members other than the slot's
// proposer.
func (c *Committee) Attesters(slot int) []string {
	proposer := c.ProposerSchedule[slot]
	out := make([]string, 0, len(c.Members)-1)
	for _, m := range c.Members {
		if m != proposer {
			out = append(out, m)
		}
	}
	return out
}
