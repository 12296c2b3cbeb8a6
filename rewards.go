/*
rewards.go: the reward-trigger client.

The capped-supply reward ledger is the votetoken chaincode on the same
channel; this file is the only place the election contract crosses into it.
The call is strictly one-way: votetoken has no function that invokes back
into this contract, so a reward recipient cannot re-enter the casting path.
Any non-200 response (cap exceeded, unauthorized minter) is surfaced as an
error, which aborts the whole originating transaction: the tally mutation
and the issuance succeed or fail together.
*/
package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

// mintReward invokes votetoken.Mint for a voter or airdrop claimant.
// Amount zero is a no-op here; callers decide whether a zero-reward action
// still proceeds (it does, for airdrop claims).
func mintReward(ctx contractapi.TransactionContextInterface, tokenCC, recipient string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("cc2cc Mint: nil ctx")
	}
	s := ctx.GetStub()
	if s == nil {
		return fmt.Errorf("cc2cc Mint: nil stub")
	}
	// Guard against typed-nil stub (interface is non-nil but underlying pointer is nil).
	if rv := reflect.ValueOf(s); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return fmt.Errorf("cc2cc Mint: nil underlying stub")
	}

	args := [][]byte{
		[]byte("Mint"),
		[]byte(recipient),
		[]byte(strconv.FormatUint(amount, 10)),
	}
	resp := s.InvokeChaincode(tokenCC, args, "") // "" => same channel

	if resp.Status != 200 {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.Status)
		}
		return fmt.Errorf("reward mint rejected: %s", msg)
	}
	return nil
}
