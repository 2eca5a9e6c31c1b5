package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPackTransfer(t *testing.T) {
	to := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	amount := big.NewInt(1000)

	data := PackTransfer(to, amount)

	assert.Len(t, data, 68)
	assert.Equal(t, transferMethodID, data[:4])
	assert.Equal(t, to.Bytes(), data[16:36])
	assert.Equal(t, amount, new(big.Int).SetBytes(data[36:]))
}

func TestPackBalanceOf(t *testing.T) {
	owner := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")

	data := PackBalanceOf(owner)

	assert.Len(t, data, 36)
	assert.Equal(t, balanceOfMethodID, data[:4])
	assert.Equal(t, owner.Bytes(), data[16:36])
}

func TestParseTransferLog(t *testing.T) {
	from := common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	to := common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	contract := common.HexToAddress("0xcccc000000000000000000000000000000000003")
	amount := big.NewInt(123456789)

	log := &types.Log{
		Address: contract,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: 148,
		TxHash:      common.HexToHash("0xdead"),
	}

	transfer, ok := ParseTransferLog(log)
	assert.True(t, ok)
	assert.Equal(t, NormalizeAddress(from.Hex()), transfer.From)
	assert.Equal(t, NormalizeAddress(to.Hex()), transfer.To)
	assert.Equal(t, NormalizeAddress(contract.Hex()), transfer.Contract)
	assert.Equal(t, 0, amount.Cmp(transfer.AmountWei))
	assert.Equal(t, int64(148), transfer.BlockNumber)
}

func TestParseTransferLog_Malformed(t *testing.T) {
	// 缺少 indexed topic 的日志不是标准 Transfer 事件
	log := &types.Log{
		Topics: []common.Hash{TransferTopic},
		Data:   make([]byte, 32),
	}
	_, ok := ParseTransferLog(log)
	assert.False(t, ok)

	// topic 不匹配
	log = &types.Log{
		Topics: []common.Hash{
			common.HexToHash("0x01"),
			common.HexToHash("0x02"),
			common.HexToHash("0x03"),
		},
		Data: make([]byte, 32),
	}
	_, ok = ParseTransferLog(log)
	assert.False(t, ok)
}

func TestWeiToDecimal(t *testing.T) {
	// 1.5 ETH
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.True(t, WeiToDecimal(wei, 18).Equal(decimal.RequireFromString("1.5")))

	// USDT 6 位精度
	assert.True(t, WeiToDecimal(big.NewInt(2500000), 6).Equal(decimal.RequireFromString("2.5")))
}

func TestDecimalToWei(t *testing.T) {
	wei := DecimalToWei(decimal.RequireFromString("1.5"), 18)
	expected, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, expected.Cmp(wei))

	// 超出精度的尾数被截断
	wei = DecimalToWei(decimal.RequireFromString("2.5000001"), 6)
	assert.Equal(t, 0, big.NewInt(2500000).Cmp(wei))
}
