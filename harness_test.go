// Harness_test.go
//
// Purpose: Minimal, deterministic test harness for the election chaincode.
// Role: Provides an in-memory world-state “ledger”, a mocked Fabric
// ChaincodeStub (via gomock), a stubbed votetoken chaincode for cc2cc
// Mint calls, settable ledger time and caller identity, and a real
// Merkle set builder so eligibility proofs are genuine, not fixtures.
// Key deps:
// - Hyperledger Fabric Go SDKs: chaincode-go/shim, contractapi, protos (peer, msp)
// - gomock for stub expectations and return paths
// - Google protobuf/timestamppb for stable TxTimestamp values
// - Local fakes package: github.com/yourorg/electionvote_cc/fakes (mock stub interface)
// Notes:
// - This harness makes defensive copies of byte slices to avoid aliasing between
// The test code and the “ledger” maps.
// - h.tx() snapshots world state, events, and the token ledger and rolls them
// Back when the operation errors, mirroring Fabric discarding the write set
// Of a failed transaction.

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	contractapi "github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	queryresult "github.com/hyperledger/fabric-protos-go-apiv2/ledger/queryresult"
	msp "github.com/hyperledger/fabric-protos-go-apiv2/msp"
	pb "github.com/hyperledger/fabric-protos-go-apiv2/peer"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	f "github.com/yourorg/electionvote_cc/fakes"
)

const (
	testBaseTime   int64 = 1767225600 // 2026-01-01T00:00:00Z
	testHourSecs   int64 = 3600
	testMSP              = "GatewayMSP"
	testTokenCC          = "votetoken"
	testVoteReward       = uint64(10)
	testMaxCands         = 10
	testAdmin            = "admin"
	testVoter1           = "voter-1"
	testVoter2           = "voter-2"
	testVoter3           = "voter-3"
	testOutsider         = "outsider"
)

/* in-memory WS harness */

// MemWorld is a tiny in-memory ledger used by the mock stub.
// It tracks world state (ws), emitted events, and op counts.
type memWorld struct {
	ws        map[string][]byte
	events    []struct {
		name    string
		payload []byte
	}
	opsCounts struct {
		getState, putState int
		setEvent           int
	}
}

func newMemWorld() *memWorld {
	return &memWorld{ws: make(map[string][]byte)}
}

// GetState simulates GetState on the in-mem world state.
// Copies the value before returning to avoid aliasing in tests.
func (m *memWorld) getState(key string) ([]byte, error) {
	m.opsCounts.getState++
	if v, ok := m.ws[key]; ok {
		return append([]byte(nil), v...), nil // Copy for safety
	}
	return nil, nil
}

// PutState simulates PutState on the in-mem world state.
func (m *memWorld) putState(key string, val []byte) error {
	m.opsCounts.putState++
	m.ws[key] = append([]byte(nil), val...) // Copy for safety
	return nil
}

func (m *memWorld) delState(key string) error {
	delete(m.ws, key)
	return nil
}

// SetEvent records a chaincode event into the in-mem log.
func (m *memWorld) setEvent(name string, payload []byte) error {
	m.opsCounts.setEvent++
	m.events = append(m.events, struct {
		name    string
		payload []byte
	}{name: name, payload: append([]byte(nil), payload...)}) // Copy for safety
	return nil
}

// MemIter is a simple iterator over a pre-materialized slice of WS keys/values.
// It implements the subset of shim.StateQueryIteratorInterface used by tests.
type memIter struct {
	keys []string
	vals [][]byte
	i    int
}

func (it *memIter) HasNext() bool { return it.i < len(it.keys) }

func (it *memIter) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	kv := &queryresult.KV{Key: it.keys[it.i], Value: it.vals[it.i]}
	it.i++
	return kv, nil
}

func (it *memIter) Close() error { return nil }

// IterWSRange materializes a range scan over world state.
// It honors [start, end) lexicographic bounds and sorts keys for deterministic order.
func (m *memWorld) iterWSRange(start, end string) *memIter {
	var keys []string
	for k := range m.ws {
		if (start == "" || k >= start) && (end == "" || k < end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys) // Keep scans stable across runs
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = append([]byte(nil), m.ws[k]...) // Copy for safety
	}
	return &memIter{keys: keys, vals: vals}
}

/* tx context w/ real stub (no gomock ctx) */

// SimpleTxCtx adapts a raw shim.ChaincodeStubInterface to a contractapi TransactionContext.
// It keeps the shape tiny because tests only need GetStub.
type simpleTxCtx struct{ s shim.ChaincodeStubInterface }

func (c *simpleTxCtx) GetStub() shim.ChaincodeStubInterface { return c.s }

// GetClientIdentity is not used by the tests; it returns nil to satisfy the interface.
func (c *simpleTxCtx) GetClientIdentity() cid.ClientIdentity { return nil }

/* stubbed votetoken ledger */

type mintRec struct {
	recipient string
	amount    uint64
}

// TokenLedger mirrors what the stubbed votetoken chaincode would hold:
// a cap, the cumulative issued amount, and the mint log for assertions.
type tokenLedger struct {
	cap    uint64
	issued uint64
	mints  []mintRec
}

/* test harness (single definition) */

// TestHarness bundles the mock controller, stub, in-mem ledger, and the
// contract under test, plus mutable txID / caller / ledger-time knobs.
type testHarness struct {
	ctrl    *gomock.Controller
	ctx     contractapi.TransactionContextInterface
	stub    *f.MockChaincodeStubInterface
	mem     *memWorld
	cc      *ElectionContract
	t       *testing.T
	txID    string
	now     int64
	creator []byte
	idents  map[string][]byte
	tok     *tokenLedger

	start, end int64 // Filled by createDefaultElection
}

// newHarness builds a mocked Fabric transaction context for unit tests.
// It wires world state to in-memory maps, routes votetoken cc2cc calls to a
// stubbed capped ledger, and defaults the caller to the admin identity.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	ctrl := gomock.NewController(t)
	stub := f.NewMockChaincodeStubInterface(ctrl)
	txctx := &simpleTxCtx{s: stub}
	mem := newMemWorld()

	h := &testHarness{
		ctrl: ctrl, ctx: txctx, stub: stub, mem: mem,
		cc: new(ElectionContract), t: t, txID: "tx-0001",
		now:    testBaseTime,
		idents: make(map[string][]byte),
		tok:    &tokenLedger{cap: ^uint64(0)},
	}
	h.creator = h.identity(testAdmin)

	// Caller identity and txID are mutable per test case.
	stub.EXPECT().GetCreator().AnyTimes().DoAndReturn(func() ([]byte, error) {
		return append([]byte(nil), h.creator...), nil
	})
	stub.EXPECT().GetTxID().AnyTimes().DoAndReturn(func() string { return h.txID })

	// Ledger time is the harness clock, not the wall clock.
	stub.EXPECT().GetTxTimestamp().AnyTimes().DoAndReturn(func() (*timestamppb.Timestamp, error) {
		return &timestamppb.Timestamp{Seconds: h.now}, nil
	})

	// Stable channel ID used by the contract.
	stub.EXPECT().GetChannelID().AnyTimes().Return("electionchan-01")

	// Wire world state to the in-mem maps.
	stub.EXPECT().GetState(gomock.Any()).AnyTimes().DoAndReturn(mem.getState)
	stub.EXPECT().PutState(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.putState)
	stub.EXPECT().DelState(gomock.Any()).AnyTimes().DoAndReturn(mem.delState)

	// World-state range queries (used by candidate arena scans over CAND:: keys).
	stub.EXPECT().
		GetStateByRange(gomock.Any(), gomock.Any()).
		AnyTimes().
		DoAndReturn(func(start, end string) (shim.StateQueryIteratorInterface, error) {
			return mem.iterWSRange(start, end), nil
		})

	// Capture events into the in-mem log for assertions.
	stub.EXPECT().SetEvent(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.setEvent)

	// Default votetoken stub: effectively unlimited cap.
	// Keep this near the end so it takes effect for all tests unless they override.
	h.stubTokenCC()

	return h
}

/* cc2cc stub (pointer return matches the shim) */

// StubTokenCC mocks the votetoken chaincode behind InvokeChaincode.
// Mint enforces the harness token ledger's cap; any other function is 404.
func (h *testHarness) stubTokenCC() {
	h.stub.EXPECT().
		InvokeChaincode(
			gomock.Eq(testTokenCC),
			gomock.AssignableToTypeOf([][]byte{}),
			gomock.Any(),
		).
		AnyTimes().
		DoAndReturn(func(cc string, args [][]byte, ch string) *pb.Response {
			if len(args) == 0 {
				return &pb.Response{Status: int32(shim.ERROR), Message: "missing fcn"}
			}
			switch string(args[0]) {
			case "Mint":
				if len(args) < 3 {
					return &pb.Response{Status: int32(shim.ERROR), Message: "bad args for Mint"}
				}
				recipient := string(args[1])
				amount, err := strconv.ParseUint(string(args[2]), 10, 64)
				if err != nil || amount == 0 {
					return &pb.Response{Status: int32(shim.ERROR), Message: "bad mint amount"}
				}
				if amount > h.tok.cap-h.tok.issued {
					return &pb.Response{Status: int32(shim.ERROR), Message: fmt.Sprintf(
						"cap exceeded: issued %d + %d > cap %d", h.tok.issued, amount, h.tok.cap)}
				}
				h.tok.issued += amount
				h.tok.mints = append(h.tok.mints, mintRec{recipient: recipient, amount: amount})
				return &pb.Response{Status: int32(shim.OK), Payload: []byte("{}")}
			default:
				return &pb.Response{Status: 404, Message: "not mocked: " + string(args[0])}
			}
		})
}

// setTokenCap reconfigures the stubbed ledger's remaining headroom.
func (h *testHarness) setTokenCap(cap uint64) { h.tok.cap = cap }

/* identity & time knobs */

// identity returns a stable SerializedIdentity for a logical caller name.
// No real certs: the election contract only hashes the creator bytes.
func (h *testHarness) identity(name string) []byte {
	if b, ok := h.idents[name]; ok {
		return b
	}
	sid := &msp.SerializedIdentity{Mspid: testMSP, IdBytes: []byte("CERT::" + name)}
	b, _ := proto.Marshal(sid)
	h.idents[name] = b
	return b
}

// setCaller switches the creator identity seen by the contract.
func (h *testHarness) setCaller(name string) { h.creator = h.identity(name) }

// addrOf is the on-chain address of a logical caller, as the contract derives it.
func (h *testHarness) addrOf(name string) string { return sha256Hex(h.identity(name)) }

func (h *testHarness) setTxID(id string) { h.txID = id }

// setNow moves the ledger clock (tx timestamp) to an absolute Unix time.
func (h *testHarness) setNow(now int64) { h.now = now }

// enterActive moves the clock just past the configured start time.
func (h *testHarness) enterActive() { h.now = h.start + 60 }

// enterEnded moves the clock just past the configured end time.
func (h *testHarness) enterEnded() { h.now = h.end + 60 }

/* eligibility set builder */

// EligibilitySet is a test-side Merkle tree over voter addresses: the root
// that goes on-chain and the per-address sibling paths voters present.
type eligibilitySet struct {
	root   string
	proofs map[string][]string
}

// buildEligibilitySet constructs the commitment the off-chain tool would
// produce. Odd levels duplicate their last node; pair hashing matches the
// verifier's smaller-operand-first normalization.
func buildEligibilitySet(addrs []string) *eligibilitySet {
	level := make([][]byte, len(addrs))
	pos := make(map[string]int, len(addrs))
	for i, a := range addrs {
		level[i] = leafHash(a)
		pos[a] = i
	}
	proofs := make(map[string][]string, len(addrs))
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		for a, p := range pos {
			proofs[a] = append(proofs[a], hex.EncodeToString(level[p^1]))
			pos[a] = p / 2
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return &eligibilitySet{root: hex.EncodeToString(level[0]), proofs: proofs}
}

// proofJSON renders the sibling path for an address as the contract expects it.
func (s *eligibilitySet) proofJSON(addr string) string {
	p := s.proofs[addr]
	if p == nil {
		return "[]"
	}
	b, _ := json.Marshal(p)
	return string(b)
}

// eligibleSet builds a commitment over the given logical callers' addresses.
func (h *testHarness) eligibleSet(names ...string) *eligibilitySet {
	addrs := make([]string, len(names))
	for i, n := range names {
		addrs[i] = h.addrOf(n)
	}
	return buildEligibilitySet(addrs)
}

/* tx atomicity */

// tx runs op as one transaction: when op errors, world state, events, and the
// token ledger are restored, the way Fabric discards a failed tx's write set.
func (h *testHarness) tx(op func() error) error {
	wsSnap := make(map[string][]byte, len(h.mem.ws))
	for k, v := range h.mem.ws {
		wsSnap[k] = v
	}
	evLen := len(h.mem.events)
	issuedSnap := h.tok.issued
	mintsLen := len(h.tok.mints)

	err := op()
	if err != nil {
		h.mem.ws = wsSnap
		h.mem.events = h.mem.events[:evLen]
		h.tok.issued = issuedSnap
		h.tok.mints = h.tok.mints[:mintsLen]
	}
	return err
}

/* contract call helpers */

// createDefaultElection runs CreateElection as the admin with sensible
// defaults: quiz enabled, start in 2h, 24h window, per-vote reward 10.
func (h *testHarness) createDefaultElection(root string) error {
	h.setCaller(testAdmin)
	h.start = h.now + 2*testHourSecs
	h.end = h.start + 24*testHourSecs
	return h.cc.CreateElection(h.ctx,
		"General Election 2030", "board seat",
		h.start, h.end, root,
		true, testMaxCands, testVoteReward, "")
}

func (h *testHarness) addCandidate(name, profileJSON string) (*Candidate, error) {
	h.setCaller(testAdmin)
	return h.cc.AddCandidate(h.ctx, name, "", profileJSON)
}

// voteDirect casts a direct ballot as the given caller, transactionally.
func (h *testHarness) voteDirect(caller string, candidateID int, proofJSON string) (string, error) {
	h.setCaller(caller)
	var out string
	err := h.tx(func() error {
		var err error
		out, err = h.cc.VoteDirect(h.ctx, candidateID, proofJSON)
		return err
	})
	return out, err
}

// voteQuiz casts a preference-matched ballot as the given caller, transactionally.
func (h *testHarness) voteQuiz(caller, answersJSON, proofJSON string) (string, error) {
	h.setCaller(caller)
	var out string
	err := h.tx(func() error {
		var err error
		out, err = h.cc.VoteByQuiz(h.ctx, answersJSON, proofJSON)
		return err
	})
	return out, err
}

// claimAirdrop claims as the given caller, transactionally.
func (h *testHarness) claimAirdrop(caller, proofJSON string) (string, error) {
	h.setCaller(caller)
	var out string
	err := h.tx(func() error {
		var err error
		out, err = h.cc.ClaimAirdrop(h.ctx, proofJSON)
		return err
	})
	return out, err
}

// candidateByID reads a candidate straight from the arena for assertions.
func (h *testHarness) candidateByID(id int) *Candidate {
	h.t.Helper()
	raw, ok := h.mem.ws[candKey(id)]
	if !ok {
		h.t.Fatalf("missing candidate key %s", candKey(id))
	}
	var cand Candidate
	if err := json.Unmarshal(raw, &cand); err != nil {
		h.t.Fatalf("bad candidate json for id %d: %v", id, err)
	}
	return &cand
}

// eventCount counts emitted events by name.
func (h *testHarness) eventCount(name string) int {
	n := 0
	for _, e := range h.mem.events {
		if e.name == name {
			n++
		}
	}
	return n
}

/* small helpers */

// RequireNoErr fails the test immediately if err != nil, labeling it unexpected.
func requireNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// RequireErrContains asserts that err is non-nil and its message contains wantSubstr (case-insensitive).
func requireErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", wantSubstr)
	}
	if wantSubstr != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(wantSubstr)) {
		t.Fatalf("error %q does not contain %q", err.Error(), wantSubstr)
	}
}
