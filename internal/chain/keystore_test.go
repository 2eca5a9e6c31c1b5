package chain

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewKeystore_InvalidMasterKey(t *testing.T) {
	_, err := NewKeystore("not-hex")
	assert.ErrorIs(t, err, ErrInvalidMasterKey)

	// 长度不足 32 字节
	_, err = NewKeystore("0001")
	assert.ErrorIs(t, err, ErrInvalidMasterKey)
}

func TestKeystore_EncryptDecrypt(t *testing.T) {
	ks, err := NewKeystore(testMasterKey)
	require.NoError(t, err)

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	privateKeyHex := hex.EncodeToString(crypto.FromECDSA(privateKey))

	encrypted, err := ks.Encrypt(privateKeyHex)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, privateKeyHex)

	decrypted, err := ks.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(privateKey), crypto.FromECDSA(decrypted))
}

func TestKeystore_DecryptInvalid(t *testing.T) {
	ks, err := NewKeystore(testMasterKey)
	require.NoError(t, err)

	_, err = ks.Decrypt("not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = ks.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestKeystore_GenerateAddress(t *testing.T) {
	ks, err := NewKeystore(testMasterKey)
	require.NoError(t, err)

	address, encryptedKey, err := ks.GenerateAddress()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(address, "0x"))
	assert.Len(t, address, 42)
	assert.Equal(t, strings.ToLower(address), address)

	// 加密私钥能恢复出同一地址
	privateKey, err := ks.Decrypt(encryptedKey)
	require.NoError(t, err)
	derived := NormalizeAddress(crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
	assert.Equal(t, address, derived)
}
