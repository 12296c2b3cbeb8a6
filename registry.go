/*
registry.go: candidate registry.

Candidates live in an append-only arena keyed CAND::<%06d id>. Ids are a
dense range 1..CANDCOUNT, assigned once and never reused, so a zero-padded
range scan over the CAND:: prefix returns candidates in ascending id order.
Add/update are locked to the Scheduled phase; deactivation is allowed in any
phase so the admin can pull a disqualified candidate mid-election without
reshaping the ballot. Vote-count increments happen only in the casting path.
*/
package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// candKey builds the arena key for a candidate id. Zero-padding keeps
// lexicographic key order equal to numeric id order for range scans.
func candKey(id int) string { return fmt.Sprintf("%s%06d", keyCandPrefix, id) }

// candidateCount reads the highest assigned candidate id (0 when empty).
func candidateCount(ctx contractapi.TransactionContextInterface) (int, error) {
	raw, err := ctx.GetStub().GetState(keyCandCount)
	if err != nil {
		return 0, fmt.Errorf("get candidate count: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("candidate count corrupt: %w", err)
	}
	return n, nil
}

// parseProfile validates a JSON preference profile like "[2,3,4]".
// Exactly profileDims components, each 0..maxScore.
func parseProfile(profileJSON string) ([3]int, error) {
	var out [3]int
	var vals []int
	if err := json.Unmarshal([]byte(profileJSON), &vals); err != nil {
		return out, fmt.Errorf("profile json: %w", err)
	}
	if len(vals) != profileDims {
		return out, fmt.Errorf("profile must have exactly %d components", profileDims)
	}
	for i, v := range vals {
		if v < 0 || v > maxScore {
			return out, fmt.Errorf("profile component %d out of range 0..%d", i, maxScore)
		}
		out[i] = v
	}
	return out, nil
}

// loadCandidate fetches a candidate by id, rejecting ids outside 1..count.
func loadCandidate(ctx contractapi.TransactionContextInterface, id int) (*Candidate, error) {
	count, err := candidateCount(ctx)
	if err != nil {
		return nil, err
	}
	if id < 1 || id > count {
		return nil, fmt.Errorf("candidate id %d out of range 1..%d", id, count)
	}
	raw, err := ctx.GetStub().GetState(candKey(id))
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	if raw == nil {
		// Ids are dense; a hole means state corruption, not a bad request.
		return nil, fmt.Errorf("candidate %d missing from arena", id)
	}
	var cand Candidate
	if err := json.Unmarshal(raw, &cand); err != nil {
		return nil, fmt.Errorf("candidate json: %w", err)
	}
	return &cand, nil
}

func putCandidate(ctx contractapi.TransactionContextInterface, cand *Candidate) error {
	return ctx.GetStub().PutState(candKey(cand.ID), mustJSON(cand))
}

// listCandidates range-scans the arena in ascending id order.
func listCandidates(ctx contractapi.TransactionContextInterface) ([]*Candidate, error) {
	it, err := ctx.GetStub().GetStateByRange(keyCandPrefix, keyCandPrefix+"~")
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*Candidate
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, err
		}
		var cand Candidate
		if err := json.Unmarshal(kv.Value, &cand); err != nil {
			return nil, fmt.Errorf("candidate json at %s: %w", kv.Key, err)
		}
		out = append(out, &cand)
	}
	return out, nil
}

/* Admin surface */

// AddCandidate appends a candidate to the arena while the election is still
// Scheduled. Rejects empty names, out-of-range profile components, and
// additions past the configured maximum. The new candidate starts active.
func (c *ElectionContract) AddCandidate(
	ctx contractapi.TransactionContextInterface,
	name, description, profileJSON string,
) (*Candidate, error) {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return nil, err
	}
	if derivePhase(cfg, nowUnix(ctx)) != phaseScheduled {
		return nil, fmt.Errorf("candidates can only be added before voting starts")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("candidate name empty")
	}
	profile, err := parseProfile(profileJSON)
	if err != nil {
		return nil, err
	}
	count, err := candidateCount(ctx)
	if err != nil {
		return nil, err
	}
	if count >= cfg.MaxCandidates {
		return nil, fmt.Errorf("candidate limit %d reached", cfg.MaxCandidates)
	}

	cand := &Candidate{
		ID:          count + 1,
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
		Profile:     profile,
	}
	if err := putCandidate(ctx, cand); err != nil {
		return nil, err
	}
	if err := ctx.GetStub().PutState(keyCandCount, []byte(strconv.Itoa(cand.ID))); err != nil {
		return nil, err
	}

	_ = ctx.GetStub().SetEvent(eventCandidateAdded, mustJSON(map[string]any{
		"id":   cand.ID,
		"name": cand.Name,
		"time": nowRFC3339(ctx),
	}))
	return cand, nil
}

// UpdateCandidate rewrites name/description/profile while still Scheduled.
// The id, active flag, and vote counter are not touched here.
func (c *ElectionContract) UpdateCandidate(
	ctx contractapi.TransactionContextInterface,
	id int,
	name, description, profileJSON string,
) (*Candidate, error) {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return nil, err
	}
	if derivePhase(cfg, nowUnix(ctx)) != phaseScheduled {
		return nil, fmt.Errorf("candidates can only be updated before voting starts")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("candidate name empty")
	}
	profile, err := parseProfile(profileJSON)
	if err != nil {
		return nil, err
	}
	cand, err := loadCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	cand.Name = name
	cand.Description = strings.TrimSpace(description)
	cand.Profile = profile
	if err := putCandidate(ctx, cand); err != nil {
		return nil, err
	}

	_ = ctx.GetStub().SetEvent(eventCandidateUpdated, mustJSON(map[string]any{
		"id":   cand.ID,
		"name": cand.Name,
		"time": nowRFC3339(ctx),
	}))
	return cand, nil
}

// DeactivateCandidate removes a candidate from the ballot in any phase.
// Votes already tallied for the candidate remain counted; the arena entry and
// its id are kept forever.
func (c *ElectionContract) DeactivateCandidate(ctx contractapi.TransactionContextInterface, id int) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	cand, err := loadCandidate(ctx, id)
	if err != nil {
		return err
	}
	if !cand.Active {
		return fmt.Errorf("candidate %d already inactive", id)
	}
	cand.Active = false
	if err := putCandidate(ctx, cand); err != nil {
		return err
	}

	_ = ctx.GetStub().SetEvent(eventCandidateDeactivated, mustJSON(map[string]any{
		"id":   cand.ID,
		"time": nowRFC3339(ctx),
	}))
	return nil
}

/* Queries */

// GetCandidate returns a single candidate by id (1..count).
func (c *ElectionContract) GetCandidate(ctx contractapi.TransactionContextInterface, id int) (*Candidate, error) {
	return loadCandidate(ctx, id)
}

// ListCandidates returns every candidate, active or not, in id order.
func (c *ElectionContract) ListCandidates(ctx contractapi.TransactionContextInterface) ([]*Candidate, error) {
	return listCandidates(ctx)
}

// ListActiveCandidates returns the current ballot in id order.
func (c *ElectionContract) ListActiveCandidates(ctx contractapi.TransactionContextInterface) ([]*Candidate, error) {
	all, err := listCandidates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Candidate, 0, len(all))
	for _, cand := range all {
		if cand.Active {
			out = append(out, cand)
		}
	}
	return out, nil
}
