/*
voting.go: the casting path and the post-election airdrop.

Both entry modes (direct candidate id, anonymous preference match) run the
same canonical castBallot pipeline: phase gate, eligibility proof, double-vote
guard, candidate resolution, then the tally/record mutations, and only then
the reward mint. Ordering is a required discipline, not an accident: internal
invariants are committed before the external reward capability is invoked,
and the capability is one-way, so no mint recipient can re-enter this
contract. A mint failure errors the invocation and Fabric discards the entire
write set, so participation and issuance are all-or-nothing.
*/
package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

const (
	modeDirect = "direct"
	modeQuiz   = "quiz"
)

// ballotChoice is the tagged variant behind the two public entry points.
type ballotChoice struct {
	mode        string
	candidateID int    // Mode == modeDirect
	answers     [3]int // Mode == modeQuiz
}

/* Matcher */

// l1Distance is the Manhattan distance between a preference vector and a
// candidate profile: sum of absolute per-dimension differences.
func l1Distance(answers [3]int, profile [3]int) int {
	d := 0
	for i := range answers {
		diff := answers[i] - profile[i]
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	return d
}

// matchCandidate selects the active candidate minimizing L1 distance to the
// voter's answers. Ties go to the lowest candidate id (candidates arrive in
// ascending id order, so first-strictly-smaller wins). No active candidates
// is an explicit failure, never a silent default.
func matchCandidate(answers [3]int, candidates []*Candidate) (*Candidate, error) {
	var best *Candidate
	bestDist := 0
	for _, cand := range candidates {
		if !cand.Active {
			continue
		}
		d := l1Distance(answers, cand.Profile)
		if best == nil || d < bestDist {
			best = cand
			bestDist = d
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no eligible candidate to match")
	}
	return best, nil
}

// parseAnswers validates a JSON quiz answer vector like "[3,2,5]".
// Same shape and bounds as a candidate profile.
func parseAnswers(answersJSON string) ([3]int, error) {
	var out [3]int
	var vals []int
	if err := json.Unmarshal([]byte(answersJSON), &vals); err != nil {
		return out, fmt.Errorf("answers json: %w", err)
	}
	if len(vals) != profileDims {
		return out, fmt.Errorf("answers must have exactly %d components", profileDims)
	}
	for i, v := range vals {
		if v < 0 || v > maxScore {
			return out, fmt.Errorf("answer component %d out of range 0..%d", i, maxScore)
		}
		out[i] = v
	}
	return out, nil
}

/* Voter records & totals */

func loadVoterRecord(ctx contractapi.TransactionContextInterface, addr string) (*VoterRecord, error) {
	raw, err := ctx.GetStub().GetState(keyVoterPrefix + addr)
	if err != nil {
		return nil, fmt.Errorf("get voter record: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec VoterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("voter record json: %w", err)
	}
	return &rec, nil
}

func putVoterRecord(ctx contractapi.TransactionContextInterface, addr string, rec *VoterRecord) error {
	return ctx.GetStub().PutState(keyVoterPrefix+addr, mustJSON(rec))
}

func totalVotes(ctx contractapi.TransactionContextInterface) (uint64, error) {
	raw, err := ctx.GetStub().GetState(keyTotalVotes)
	if err != nil {
		return 0, fmt.Errorf("get total votes: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("total votes corrupt: %w", err)
	}
	return n, nil
}

/* Hot path */

// castBallot is the single canonical vote operation.
//
// Guard order (all checks before any write):
//  1. election exists and phase is Active
//  2. caller's membership proof verifies against the committed root
//  3. caller has not voted
//  4. candidate resolves (direct id, or quiz match over active candidates)
// Mutations: candidate.voteCount++, VoterRecord written, TOTALVOTES++, the
// auditable VoteCast event, then the reward mint, whose failure aborts all
// of the above with it.
func (c *ElectionContract) castBallot(
	ctx contractapi.TransactionContextInterface,
	proofJSON string,
	choice ballotChoice,
) (*Candidate, error) {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	now := nowUnix(ctx)
	switch derivePhase(cfg, now) {
	case phaseActive:
		// Proceed
	case phaseScheduled:
		return nil, fmt.Errorf("voting has not started")
	default:
		return nil, fmt.Errorf("voting has ended")
	}

	voter, err := callerAddress(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := verifyMembership(voter, cfg.MerkleRoot, proofJSON)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("invalid eligibility proof")
	}

	rec, err := loadVoterRecord(ctx, voter)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.HasVoted {
		return nil, fmt.Errorf("already voted")
	}
	if rec == nil {
		rec = &VoterRecord{}
	}

	var cand *Candidate
	switch choice.mode {
	case modeDirect:
		cand, err = loadCandidate(ctx, choice.candidateID)
		if err != nil {
			return nil, err
		}
		if !cand.Active {
			return nil, fmt.Errorf("candidate %d is not active", cand.ID)
		}
	case modeQuiz:
		if !cfg.QuizEnabled {
			return nil, fmt.Errorf("preference-matched voting is not enabled")
		}
		active, err := listCandidates(ctx)
		if err != nil {
			return nil, err
		}
		cand, err = matchCandidate(choice.answers, active)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown ballot mode %q", choice.mode)
	}

	// Commit internal invariants first; the mint comes last.
	cand.VoteCount++
	if err := putCandidate(ctx, cand); err != nil {
		return nil, err
	}
	rec.HasVoted = true
	rec.CandidateID = cand.ID
	rec.Mode = choice.mode
	rec.VotedAt = nowRFC3339(ctx)
	if err := putVoterRecord(ctx, voter, rec); err != nil {
		return nil, err
	}
	total, err := totalVotes(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.GetStub().PutState(keyTotalVotes, []byte(strconv.FormatUint(total+1, 10))); err != nil {
		return nil, err
	}

	// Auditable record: the quiz caller never learns the candidate from the
	// return value, but the choice is not hidden from ledger readers.
	_ = ctx.GetStub().SetEvent(eventVoteCast, mustJSON(map[string]any{
		"voter":       voter,
		"candidateID": cand.ID,
		"mode":        choice.mode,
		"txID":        ctx.GetStub().GetTxID(),
		"time":        nowRFC3339(ctx),
	}))

	if err := mintReward(ctx, cfg.TokenCCName, voter, cfg.VoteReward); err != nil {
		return nil, err
	}
	return cand, nil
}

// VoteDirect casts a ballot for an explicit candidate id.
// Returns a small receipt JSON naming the candidate voted for.
func (c *ElectionContract) VoteDirect(ctx contractapi.TransactionContextInterface, candidateID int, proofJSON string) (string, error) {
	cand, err := c.castBallot(ctx, proofJSON, ballotChoice{mode: modeDirect, candidateID: candidateID})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"txID":"%s","candidateID":%d,"status":"accepted"}`,
		ctx.GetStub().GetTxID(), cand.ID), nil
}

// VoteByQuiz casts a ballot resolved by preference matching. The receipt
// deliberately omits the resolved candidate: success/failure is all the
// caller learns from the return value.
func (c *ElectionContract) VoteByQuiz(ctx contractapi.TransactionContextInterface, answersJSON, proofJSON string) (string, error) {
	answers, err := parseAnswers(answersJSON)
	if err != nil {
		return "", err
	}
	if _, err := c.castBallot(ctx, proofJSON, ballotChoice{mode: modeQuiz, answers: answers}); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"txID":"%s","status":"accepted"}`, ctx.GetStub().GetTxID()), nil
}

/* Airdrop */

// ClaimAirdrop pays the consolation amount to an eligible identity that never
// voted. Requires the airdrop to be enabled (which itself requires the
// election to be over). A zero configured amount still marks the claim but
// issues nothing. Voters can never claim; claims are once per identity.
func (c *ElectionContract) ClaimAirdrop(ctx contractapi.TransactionContextInterface, proofJSON string) (string, error) {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return "", err
	}
	now := nowUnix(ctx)
	if !phaseAtLeastEnded(cfg, now) {
		return "", fmt.Errorf("election has not ended")
	}
	if !cfg.AirdropEnabled {
		return "", fmt.Errorf("airdrop is not enabled")
	}

	claimant, err := callerAddress(ctx)
	if err != nil {
		return "", err
	}
	ok, err := verifyMembership(claimant, cfg.MerkleRoot, proofJSON)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("invalid eligibility proof")
	}

	rec, err := loadVoterRecord(ctx, claimant)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.HasVoted {
		return "", fmt.Errorf("voters cannot claim the airdrop")
	}
	if rec != nil && rec.ClaimedAirdrop {
		return "", fmt.Errorf("airdrop already claimed")
	}
	if rec == nil {
		rec = &VoterRecord{}
	}

	rec.ClaimedAirdrop = true
	if err := putVoterRecord(ctx, claimant, rec); err != nil {
		return "", err
	}
	_ = ctx.GetStub().SetEvent(eventAirdropClaimed, mustJSON(map[string]any{
		"claimant": claimant,
		"amount":   cfg.AirdropAmount,
		"txID":     ctx.GetStub().GetTxID(),
		"time":     nowRFC3339(ctx),
	}))

	if err := mintReward(ctx, cfg.TokenCCName, claimant, cfg.AirdropAmount); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"txID":"%s","amount":%d,"status":"claimed"}`,
		ctx.GetStub().GetTxID(), cfg.AirdropAmount), nil
}
