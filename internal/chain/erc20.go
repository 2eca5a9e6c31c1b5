package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// Minimal ERC20 surface: the custody flow only needs transfer, balanceOf
// and the Transfer event. Hand-packed calldata avoids carrying a full ABI.
var (
	// TransferTopic is keccak256("Transfer(address,address,uint256)").
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	transferMethodID  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	balanceOfMethodID = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// PackTransfer encodes calldata for transfer(to, amount).
func PackTransfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferMethodID...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// PackBalanceOf encodes calldata for balanceOf(owner).
func PackBalanceOf(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfMethodID...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return data
}

// ParseTransferLog decodes a Transfer event log into a Transfer record.
// Returns false for logs that are not well-formed Transfer events.
func ParseTransferLog(log *types.Log) (*Transfer, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferTopic {
		return nil, false
	}
	if len(log.Data) != 32 {
		return nil, false
	}

	from := common.BytesToAddress(log.Topics[1].Bytes())
	to := common.BytesToAddress(log.Topics[2].Bytes())
	amount := new(big.Int).SetBytes(log.Data)

	return &Transfer{
		TxHash:      log.TxHash.Hex(),
		From:        NormalizeAddress(from.Hex()),
		To:          NormalizeAddress(to.Hex()),
		AmountWei:   amount,
		BlockNumber: int64(log.BlockNumber),
		Contract:    NormalizeAddress(log.Address.Hex()),
	}, true
}

// WeiToDecimal converts an on-chain integer amount into a ledger decimal
// using the token's decimals.
func WeiToDecimal(wei *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -decimals)
}

// DecimalToWei converts a ledger decimal into an on-chain integer amount.
// The fractional part beyond the token's decimals is truncated.
func DecimalToWei(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
