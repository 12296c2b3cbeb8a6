// -----------------------------------------------------------------------------
// Votetoken_cc contract (Go, Fabric v3.1.1)
// Purpose: Capped-supply reward ledger consumed by the election chaincode.
// Enforces the issuance cap (issued ≤ cap after every successful mint) and
// Minter authorization; holds per-address balances.
// Role in system: The "external reward ledger": the election contract reaches
// It cross-chaincode, and a rejected mint aborts the whole originating
// Vote/claim transaction on the caller's side.
// Key dependencies: Hyperledger Fabric contractapi; fabric-protos msp for
// Creator identity parsing.
// -----------------------------------------------------------------------------

/*
votetoken.go: minimal capped mint/balance ledger.

Authorization model: a callee chaincode cannot see which chaincode invoked
it, only the client that submitted the transaction, so minting is gated on
the submitting identity's MSP. The allow-list names the gateway org MSPs
permitted to drive reward issuance (set at InitToken, extendable by the token
admin). Transfer/approve/burn semantics are intentionally absent; this ledger
only issues.
*/
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
	msp "github.com/hyperledger/fabric-protos-go-apiv2/msp"
	"google.golang.org/protobuf/proto"
)

const (
	keyToken     = "TOKEN"  // TOKEN → TokenInfo JSON
	keyIssued    = "ISSUED" // Cumulative issued amount (decimal string)
	keyBalPrefix = "BAL::"  // BAL::<address> → balance (decimal string)
)

const (
	eventTokensMinted    = "TokensMinted"
	eventMinterAuthorized = "MinterAuthorized"
)

// VoteTokenContract implements the reward token ledger.
type VoteTokenContract struct{ contractapi.Contract }

// TokenInfo is the on-chain token metadata (TOKEN key).
type TokenInfo struct {
	Name       string   `json:"name"`
	Symbol     string   `json:"symbol"`
	Cap        uint64   `json:"cap"`
	AdminMSP   string   `json:"adminMSP"`
	MinterMSPs []string `json:"minterMSPs"`
}

/* Small helpers */

func mustJSON(v any) []byte { b, _ := json.Marshal(v); return b }

// callerMSP unmarshals the creator's SerializedIdentity and returns its MSP id.
func callerMSP(ctx contractapi.TransactionContextInterface) (string, error) {
	creator, err := ctx.GetStub().GetCreator()
	if err != nil {
		return "", fmt.Errorf("get creator: %w", err)
	}
	var sid msp.SerializedIdentity
	if err := proto.Unmarshal(creator, &sid); err != nil {
		return "", fmt.Errorf("creator identity parse: %w", err)
	}
	if sid.Mspid == "" {
		return "", fmt.Errorf("creator identity has no MSP id")
	}
	return sid.Mspid, nil
}

func loadToken(ctx contractapi.TransactionContextInterface) (*TokenInfo, error) {
	raw, err := ctx.GetStub().GetState(keyToken)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("token not initialized")
	}
	var info TokenInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("token json: %w", err)
	}
	return &info, nil
}

func readUint(ctx contractapi.TransactionContextInterface, key string) (uint64, error) {
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	var n uint64
	if _, err := fmt.Sscanf(string(raw), "%d", &n); err != nil {
		return 0, fmt.Errorf("counter %s corrupt: %w", key, err)
	}
	return n, nil
}

func writeUint(ctx contractapi.TransactionContextInterface, key string, n uint64) error {
	return ctx.GetStub().PutState(key, []byte(fmt.Sprintf("%d", n)))
}

// minterAllowed checks the caller's MSP against admin + allow-list.
func minterAllowed(info *TokenInfo, mspID string) bool {
	if mspID == info.AdminMSP {
		return true
	}
	for _, m := range info.MinterMSPs {
		if m == mspID {
			return true
		}
	}
	return false
}

/* Admin / Setup */

// InitToken creates the token exactly once. The caller's MSP becomes the
// token admin. minterMSPsJSON is a JSON array of additional MSP ids allowed
// to mint (may be "[]"; the admin can always mint).
func (c *VoteTokenContract) InitToken(
	ctx contractapi.TransactionContextInterface,
	name, symbol string,
	cap uint64,
	minterMSPsJSON string,
) error {
	raw, err := ctx.GetStub().GetState(keyToken)
	if err != nil {
		return err
	}
	if raw != nil {
		return fmt.Errorf("token already initialized")
	}

	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	if name == "" || symbol == "" {
		return fmt.Errorf("token name and symbol required")
	}
	if cap == 0 {
		return fmt.Errorf("cap must be positive")
	}
	var minters []string
	if strings.TrimSpace(minterMSPsJSON) != "" {
		if err := json.Unmarshal([]byte(minterMSPsJSON), &minters); err != nil {
			return fmt.Errorf("minter list json: %w", err)
		}
	}
	admin, err := callerMSP(ctx)
	if err != nil {
		return err
	}

	info := &TokenInfo{Name: name, Symbol: symbol, Cap: cap, AdminMSP: admin, MinterMSPs: minters}
	return ctx.GetStub().PutState(keyToken, mustJSON(info))
}

// AuthorizeMinter adds an MSP to the minter allow-list (admin only).
func (c *VoteTokenContract) AuthorizeMinter(ctx contractapi.TransactionContextInterface, mspID string) error {
	info, err := loadToken(ctx)
	if err != nil {
		return err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return err
	}
	if caller != info.AdminMSP {
		return fmt.Errorf("caller is not the token admin")
	}
	mspID = strings.TrimSpace(mspID)
	if mspID == "" {
		return fmt.Errorf("msp id empty")
	}
	if minterAllowed(info, mspID) {
		return nil // Idempotent
	}
	info.MinterMSPs = append(info.MinterMSPs, mspID)
	if err := ctx.GetStub().PutState(keyToken, mustJSON(info)); err != nil {
		return err
	}
	_ = ctx.GetStub().SetEvent(eventMinterAuthorized, mustJSON(map[string]string{"msp": mspID}))
	return nil
}

/* Mint */

// Mint issues amount to recipient, preserving issued ≤ cap.
// Outcomes map to the reward-trigger contract: nil (Ok), "cap exceeded"
// (CapExceeded), "not authorized" (Unauthorized); all non-nil outcomes abort
// the originating transaction on the election side.
func (c *VoteTokenContract) Mint(ctx contractapi.TransactionContextInterface, recipient string, amount uint64) error {
	info, err := loadToken(ctx)
	if err != nil {
		return err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return err
	}
	if !minterAllowed(info, caller) {
		return fmt.Errorf("msp %s is not authorized to mint", caller)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return fmt.Errorf("recipient empty")
	}
	if amount == 0 {
		return fmt.Errorf("mint amount must be positive")
	}

	issued, err := readUint(ctx, keyIssued)
	if err != nil {
		return err
	}
	if amount > info.Cap-issued { // Overflow-safe: issued ≤ cap always holds here
		return fmt.Errorf("cap exceeded: issued %d + %d > cap %d", issued, amount, info.Cap)
	}

	bal, err := readUint(ctx, keyBalPrefix+recipient)
	if err != nil {
		return err
	}
	if err := writeUint(ctx, keyBalPrefix+recipient, bal+amount); err != nil {
		return err
	}
	if err := writeUint(ctx, keyIssued, issued+amount); err != nil {
		return err
	}

	_ = ctx.GetStub().SetEvent(eventTokensMinted, mustJSON(map[string]any{
		"recipient": recipient,
		"amount":    amount,
		"issued":    issued + amount,
		"txID":      ctx.GetStub().GetTxID(),
	}))
	return nil
}

/* Queries */

// BalanceOf returns the accumulated balance for an address (0 if unseen).
func (c *VoteTokenContract) BalanceOf(ctx contractapi.TransactionContextInterface, address string) (uint64, error) {
	return readUint(ctx, keyBalPrefix+strings.TrimSpace(address))
}

// TotalIssued returns the cumulative issued amount.
func (c *VoteTokenContract) TotalIssued(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return readUint(ctx, keyIssued)
}

// GetTokenInfo returns the token metadata.
func (c *VoteTokenContract) GetTokenInfo(ctx contractapi.TransactionContextInterface) (*TokenInfo, error) {
	return loadToken(ctx)
}

func main() {
	cc, err := contractapi.NewChaincode(new(VoteTokenContract))
	if err != nil {
		panic(err)
	}
	if err := cc.Start(); err != nil {
		panic(err)
	}
}
