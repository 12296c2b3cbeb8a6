/*
results.go: read-only ranking and status.

Always available, including mid-election (values may still change until the
phase reaches Ended). Tie-break policy is fixed deliberately: descending vote
count, then ascending candidate id, applied identically to the full ranking
and to winner resolution so the two views never disagree.
*/
package main

import (
	"fmt"
	"sort"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// ElectionStatus is the public election summary returned to dashboards.
type ElectionStatus struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Phase            string `json:"phase"`
	StartTime        int64  `json:"startTime"`
	EndTime          int64  `json:"endTime"`
	QuizEnabled      bool   `json:"quizEnabled"`
	AirdropEnabled   bool   `json:"airdropEnabled"`
	ResultsPublished bool   `json:"resultsPublished"`
	CandidateCount   int    `json:"candidateCount"`
	TotalVotes       uint64 `json:"totalVotes"`
}

// GetElectionStatus returns the configured election with its derived phase.
func (c *ElectionContract) GetElectionStatus(ctx contractapi.TransactionContextInterface) (*ElectionStatus, error) {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	count, err := candidateCount(ctx)
	if err != nil {
		return nil, err
	}
	total, err := totalVotes(ctx)
	if err != nil {
		return nil, err
	}
	return &ElectionStatus{
		Name:             cfg.Name,
		Description:      cfg.Description,
		Phase:            derivePhase(cfg, nowUnix(ctx)),
		StartTime:        cfg.StartTime,
		EndTime:          cfg.EndTime,
		QuizEnabled:      cfg.QuizEnabled,
		AirdropEnabled:   cfg.AirdropEnabled,
		ResultsPublished: cfg.ResultsPublished,
		CandidateCount:   count,
		TotalVotes:       total,
	}, nil
}

// RankedResults returns all candidates ordered by descending vote count,
// ties broken by ascending candidate id.
func (c *ElectionContract) RankedResults(ctx contractapi.TransactionContextInterface) ([]*Candidate, error) {
	cands, err := listCandidates(ctx)
	if err != nil {
		return nil, err
	}
	// listCandidates yields ascending id order, so a stable sort on vote
	// count alone preserves the id tie-break.
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].VoteCount > cands[j].VoteCount
	})
	return cands, nil
}

// WinningCandidate resolves the current leader: maximum vote count, lowest id
// among tied candidates. Errors when no candidates exist.
func (c *ElectionContract) WinningCandidate(ctx contractapi.TransactionContextInterface) (*Candidate, error) {
	cands, err := listCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("no candidates registered")
	}
	best := cands[0]
	for _, cand := range cands[1:] {
		if cand.VoteCount > best.VoteCount {
			best = cand
		}
	}
	return best, nil
}

// GetVoterRecord exposes a voter's participation record for transparency:
// whether the identity voted, for which candidate, and its airdrop status.
func (c *ElectionContract) GetVoterRecord(ctx contractapi.TransactionContextInterface, address string) (*VoterRecord, error) {
	rec, err := loadVoterRecord(ctx, address)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no record for address %s", address)
	}
	return rec, nil
}
