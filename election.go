// -----------------------------------------------------------------------------
// Electionvote_cc contract (Go, Fabric v3.1.1)
// Purpose: Transactional core of a verifiable election: Merkle-committed
// Eligibility, a phase-locked candidate registry, one-vote-per-identity
// Casting (direct or preference-matched), deterministic results, and
// Bounded token rewards via a companion capped-supply chaincode.
// Role in system: Single source of truth for election state on the channel.
// Key dependencies: Hyperledger Fabric contractapi; the "votetoken" chaincode
// (cc2cc) as the external reward ledger; an off-chain tool that builds the
// Eligibility commitment and hands voters their membership proofs.
// -----------------------------------------------------------------------------

/*
election.go: election configuration, phase clock, and admin surface.

The election lifecycle is Scheduled → Active → Ended → Finalized. Active and
Ended are never stored: every entry point re-derives the current phase from
the transaction timestamp against the configured start/end, so the clock is
the orderer's, not ours. EndElection and PublishResults are explicit admin
actions layered on top of the time-derived phase.

The chaincode does not expose any HTTP endpoints. A separate gateway/service
is expected to invoke these contract functions and subscribe to emitted events.
*/
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

/* Keys & constants (single namespace for this chaincode) */

const (
	// World state keys (public)
	keyElection   = "ELECTION"    // ELECTION → ElectionConfig JSON (one election per channel)
	keyCandPrefix = "CAND::"      // CAND::<%06d id> → Candidate JSON
	keyCandCount  = "CANDCOUNT"   // Highest assigned candidate id (dense 1..count)
	keyVoterPrefix = "VOTER::"    // VOTER::<address> → VoterRecord JSON
	keyTotalVotes  = "TOTALVOTES" // Running total; always Σ candidate.voteCount
)

const (
	// Phases derived from tx time + stored flags; never written to state.
	phaseScheduled = "scheduled"
	phaseActive    = "active"
	phaseEnded     = "ended"
	phaseFinalized = "finalized"
)

const (
	// CreateElection rejects a start time closer than this to the tx timestamp.
	minStartLead = int64(time.Hour / time.Second)

	maxScore       = 10 // Preference profile components and quiz answers are 0..maxScore
	profileDims    = 3
	defaultTokenCC = "votetoken"
)

const (
	eventElectionCreated      = "ElectionCreated"
	eventRootRotated          = "RootRotated"
	eventElectionEnded        = "ElectionEnded"
	eventResultsPublished     = "ResultsPublished"
	eventCandidateAdded       = "CandidateAdded"
	eventCandidateUpdated     = "CandidateUpdated"
	eventCandidateDeactivated = "CandidateDeactivated"
	eventVoteCast             = "VoteCast"
	eventAirdropEnabled       = "AirdropEnabled"
	eventAirdropClaimed       = "AirdropClaimed"
)

/* Types & small data models */

// ElectionContract implements the Fabric contract for the election core.
//
// Responsibilities:
// - Gate every mutation on the derived phase and the stored admin capability.
// - Accept at most one ballot per eligible identity and tally it atomically.
// - Trigger reward issuance on the votetoken chaincode after local commits.
type ElectionContract struct{ contractapi.Contract }

// ElectionConfig is the single on-chain election record (ELECTION key).
//
// Admin holds the creator address captured at CreateElection; it is the only
// identity allowed to run the admin surface. MerkleRoot is the eligibility
// commitment produced entirely off-chain; this contract never sees the list.
type ElectionConfig struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	StartTime        int64  `json:"startTime"` // Unix seconds
	EndTime          int64  `json:"endTime"`   // Unix seconds
	MerkleRoot       string `json:"merkleRoot"` // 32-byte hex, non-zero
	Admin            string `json:"admin"`
	QuizEnabled      bool   `json:"quizEnabled"`
	MaxCandidates    int    `json:"maxCandidates"`
	VoteReward       uint64 `json:"voteReward"`
	AirdropAmount    uint64 `json:"airdropAmount"`
	AirdropEnabled   bool   `json:"airdropEnabled"`
	Ended            bool   `json:"ended"` // Sticky flag set by EndElection
	ResultsPublished bool   `json:"resultsPublished"`
	TokenCCName      string `json:"tokenCCName"`
}

// Candidate lives in an append-only arena keyed CAND::<%06d id>.
// Ids are dense 1..count and never reused; deactivation only clears Active.
type Candidate struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Profile     [3]int `json:"profile"` // Each component 0..maxScore
	VoteCount   uint64 `json:"voteCount"`
}

// VoterRecord is created implicitly on first vote or first airdrop claim and
// never deleted. HasVoted and ClaimedAirdrop only ever transition false→true.
type VoterRecord struct {
	HasVoted       bool   `json:"hasVoted"`
	CandidateID    int    `json:"candidateID,omitempty"` // Recorded for transparency
	Mode           string `json:"mode,omitempty"`        // "direct" | "quiz"
	VotedAt        string `json:"votedAt,omitempty"`     // RFC3339
	ClaimedAirdrop bool   `json:"claimedAirdrop"`
}

/* Small helpers */

// nowUnix returns the transaction timestamp in Unix seconds.
// All phase decisions use this value, never the peer's wall clock.
func nowUnix(ctx contractapi.TransactionContextInterface) int64 {
	ts, _ := ctx.GetStub().GetTxTimestamp()
	if ts == nil {
		return 0
	}
	return ts.Seconds
}

// nowRFC3339 returns the transaction timestamp as an RFC3339 UTC string.
func nowRFC3339(ctx contractapi.TransactionContextInterface) string {
	ts, _ := ctx.GetStub().GetTxTimestamp()
	if ts == nil {
		return ""
	}
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC().Format(time.RFC3339)
}

// sha256Hex returns the SHA-256 hash of a byte slice, hex-encoded.
func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// mustJSON marshals v and ignores errors (used for events and small writes).
func mustJSON(v any) []byte { b, _ := json.Marshal(v); return b }

// callerAddress derives the voter/admin address from the Fabric creator
// identity. The address is what the off-chain commitment tool hashes into
// the eligibility tree, so it must be a pure function of the identity bytes.
func callerAddress(ctx contractapi.TransactionContextInterface) (string, error) {
	creator, err := ctx.GetStub().GetCreator()
	if err != nil {
		return "", fmt.Errorf("get creator: %w", err)
	}
	if len(creator) == 0 {
		return "", fmt.Errorf("empty creator identity")
	}
	return sha256Hex(creator), nil
}

// loadConfig reads the election; nil config means CreateElection never ran.
func loadConfig(ctx contractapi.TransactionContextInterface) (*ElectionConfig, error) {
	raw, err := ctx.GetStub().GetState(keyElection)
	if err != nil {
		return nil, fmt.Errorf("get election: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var cfg ElectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("election json: %w", err)
	}
	return &cfg, nil
}

// mustLoadConfig is loadConfig for entry points that require an election.
func mustLoadConfig(ctx contractapi.TransactionContextInterface) (*ElectionConfig, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("election not created")
	}
	return cfg, nil
}

func putConfig(ctx contractapi.TransactionContextInterface, cfg *ElectionConfig) error {
	return ctx.GetStub().PutState(keyElection, mustJSON(cfg))
}

// derivePhase recomputes the current phase from tx time and stored flags.
// Finalized is informational (results published); it never blocks reads.
func derivePhase(cfg *ElectionConfig, now int64) string {
	switch {
	case cfg.ResultsPublished:
		return phaseFinalized
	case cfg.Ended || now > cfg.EndTime:
		return phaseEnded
	case now >= cfg.StartTime:
		return phaseActive
	default:
		return phaseScheduled
	}
}

// phaseAtLeastEnded reports whether voting is over (ended or finalized).
func phaseAtLeastEnded(cfg *ElectionConfig, now int64) bool {
	p := derivePhase(cfg, now)
	return p == phaseEnded || p == phaseFinalized
}

// requireAdmin rejects callers other than the stored election admin.
func requireAdmin(ctx contractapi.TransactionContextInterface, cfg *ElectionConfig) error {
	addr, err := callerAddress(ctx)
	if err != nil {
		return err
	}
	if addr != cfg.Admin {
		return fmt.Errorf("caller is not the election admin")
	}
	return nil
}

// checkRootHex validates the eligibility commitment: 32 bytes of hex, not all
// zero. The commitment is opaque to this contract beyond these shape checks.
func checkRootHex(root string) (string, error) {
	root = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(root), "0x"))
	b, err := hex.DecodeString(root)
	if err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("eligibility root must be 32 bytes of hex")
	}
	zero := true
	for _, x := range b {
		if x != 0 {
			zero = false
			break
		}
	}
	if zero {
		return "", fmt.Errorf("eligibility root must not be zero")
	}
	return root, nil
}

/* Admin / Setup */

// CreateElection configures the one election this channel hosts.
//
// Constraints (rejected before any write):
// - no election exists yet
// - name non-empty, end > start, start at least minStartLead past tx time
// - rootHex is a well-formed, non-zero 32-byte commitment
// - maxCandidates >= 1
// The caller becomes the election admin. tokenCC may be empty to use the
// default "votetoken" chaincode name.
func (c *ElectionContract) CreateElection(
	ctx contractapi.TransactionContextInterface,
	name, description string,
	startTime, endTime int64,
	rootHex string,
	quizEnabled bool,
	maxCandidates int,
	voteReward uint64,
	tokenCC string,
) error {
	existing, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("election already created")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("election name empty")
	}
	now := nowUnix(ctx)
	if startTime < now+minStartLead {
		return fmt.Errorf("start time must be at least %d seconds after now", minStartLead)
	}
	if endTime <= startTime {
		return fmt.Errorf("end time must be after start time")
	}
	root, err := checkRootHex(rootHex)
	if err != nil {
		return err
	}
	if maxCandidates < 1 {
		return fmt.Errorf("maxCandidates must be at least 1")
	}

	admin, err := callerAddress(ctx)
	if err != nil {
		return err
	}
	tokenCC = strings.TrimSpace(tokenCC)
	if tokenCC == "" {
		tokenCC = defaultTokenCC
	}

	cfg := &ElectionConfig{
		Name:          name,
		Description:   strings.TrimSpace(description),
		StartTime:     startTime,
		EndTime:       endTime,
		MerkleRoot:    root,
		Admin:         admin,
		QuizEnabled:   quizEnabled,
		MaxCandidates: maxCandidates,
		VoteReward:    voteReward,
		TokenCCName:   tokenCC,
	}
	if err := putConfig(ctx, cfg); err != nil {
		return err
	}

	_ = ctx.GetStub().SetEvent(eventElectionCreated, mustJSON(map[string]any{
		"name":      name,
		"startTime": startTime,
		"endTime":   endTime,
		"rootHash":  sha256Hex([]byte(root)), // Commitment fingerprint, not the root itself
		"time":      nowRFC3339(ctx),
	}))
	return nil
}

// RotateMerkleRoot swaps the eligibility commitment before voting starts.
// Proofs issued against the previous root stop verifying immediately.
func (c *ElectionContract) RotateMerkleRoot(ctx contractapi.TransactionContextInterface, rootHex string) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	if derivePhase(cfg, nowUnix(ctx)) != phaseScheduled {
		return fmt.Errorf("eligibility root can only be rotated before voting starts")
	}
	root, err := checkRootHex(rootHex)
	if err != nil {
		return err
	}
	cfg.MerkleRoot = root
	if err := putConfig(ctx, cfg); err != nil {
		return err
	}
	_ = ctx.GetStub().SetEvent(eventRootRotated, mustJSON(map[string]string{
		"rootHash": sha256Hex([]byte(root)),
		"time":     nowRFC3339(ctx),
	}))
	return nil
}

// SetVoteReward adjusts the per-vote mint amount while still Scheduled.
// Once voting starts the reward is locked so every ballot pays the same.
func (c *ElectionContract) SetVoteReward(ctx contractapi.TransactionContextInterface, amount uint64) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	if derivePhase(cfg, nowUnix(ctx)) != phaseScheduled {
		return fmt.Errorf("vote reward is locked once voting starts")
	}
	cfg.VoteReward = amount
	return putConfig(ctx, cfg)
}

// EndElection closes voting explicitly, ahead of (or after) the configured
// end time. The flag is sticky; an election cannot be re-opened.
func (c *ElectionContract) EndElection(ctx contractapi.TransactionContextInterface) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	now := nowUnix(ctx)
	if derivePhase(cfg, now) == phaseScheduled {
		return fmt.Errorf("election has not started")
	}
	if cfg.Ended {
		return fmt.Errorf("election already ended")
	}
	cfg.Ended = true
	if err := putConfig(ctx, cfg); err != nil {
		return err
	}
	_ = ctx.GetStub().SetEvent(eventElectionEnded, mustJSON(map[string]string{
		"time": nowRFC3339(ctx),
	}))
	return nil
}

// PublishResults marks results as final. Terminal and informational: it does
// not block reads or airdrop claims, it only moves the phase to Finalized.
func (c *ElectionContract) PublishResults(ctx contractapi.TransactionContextInterface) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	now := nowUnix(ctx)
	if !phaseAtLeastEnded(cfg, now) {
		return fmt.Errorf("results can only be published after the election ends")
	}
	if cfg.ResultsPublished {
		return fmt.Errorf("results already published")
	}
	cfg.ResultsPublished = true
	if err := putConfig(ctx, cfg); err != nil {
		return err
	}
	_ = ctx.GetStub().SetEvent(eventResultsPublished, mustJSON(map[string]string{
		"time": nowRFC3339(ctx),
	}))
	return nil
}

// SetAirdropAmount sets the consolation payout per eligible non-voter.
// Allowed in any phase; claims only open once EnableAirdrop runs after Ended.
func (c *ElectionContract) SetAirdropAmount(ctx contractapi.TransactionContextInterface, amount uint64) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	cfg.AirdropAmount = amount
	return putConfig(ctx, cfg)
}

// EnableAirdrop opens consolation claims. Requires the election to be over.
func (c *ElectionContract) EnableAirdrop(ctx contractapi.TransactionContextInterface) error {
	cfg, err := mustLoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, cfg); err != nil {
		return err
	}
	if !phaseAtLeastEnded(cfg, nowUnix(ctx)) {
		return fmt.Errorf("airdrop can only be enabled after the election ends")
	}
	if cfg.AirdropEnabled {
		return fmt.Errorf("airdrop already enabled")
	}
	cfg.AirdropEnabled = true
	if err := putConfig(ctx, cfg); err != nil {
		return err
	}
	_ = ctx.GetStub().SetEvent(eventAirdropEnabled, mustJSON(map[string]any{
		"amount": cfg.AirdropAmount,
		"time":   nowRFC3339(ctx),
	}))
	return nil
}

/* Health */

// Ping is a simple health check used by deployment tooling and test harnesses.
func (c *ElectionContract) Ping(ctx contractapi.TransactionContextInterface) (string, error) {
	return "OK:" + ctx.GetStub().GetTxID(), nil
}
