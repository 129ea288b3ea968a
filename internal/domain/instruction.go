package domain

import (
	"encoding/json"
	"fmt"
)

// Instructions arrive attached to collateral transfers as tagged JSON. Each
// one is decoded exactly once at the boundary and dispatched to the matching
// engine operation; unknown tags are rejected with the attached funds
// reported back to the payer.

// Instruction is the closed set of transfer-attached commands.
type Instruction interface {
	isInstruction()
}

// BuyInstruction spends the attached collateral on outcome shares.
type BuyInstruction struct {
	MarketID  uint64 `json:"market_id"`
	OutcomeID int    `json:"outcome_id"`
	NumShares uint64 `json:"num_shares"`
}

// DepositInstruction funds a pending market with the attached collateral.
type DepositInstruction struct {
	MarketID uint64 `json:"market_id"`
}

func (BuyInstruction) isInstruction()     {}
func (DepositInstruction) isInstruction() {}

type instructionEnvelope struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}

// DecodeInstruction parses a tagged instruction payload.
func DecodeInstruction(data []byte) (Instruction, error) {
	var env instructionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("domain: decode instruction: %w", err)
	}

	switch env.Type {
	case "buy":
		var in BuyInstruction
		if err := json.Unmarshal(env.Args, &in); err != nil {
			return nil, fmt.Errorf("domain: decode buy instruction: %w", err)
		}
		return in, nil
	case "initial_deposit":
		var in DepositInstruction
		if err := json.Unmarshal(env.Args, &in); err != nil {
			return nil, fmt.Errorf("domain: decode deposit instruction: %w", err)
		}
		return in, nil
	default:
		return nil, fmt.Errorf("domain: instruction type %q: %w", env.Type, ErrUnknownInstruction)
	}
}
