package chain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidMasterKey  = errors.New("master key must be 32 bytes hex")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Keystore 钱包私钥的加解密
// 私钥以 AES-256-GCM 加密后落库，主密钥只存在于进程配置中
type Keystore struct {
	aead cipher.AEAD
}

// NewKeystore 创建密钥库，masterKeyHex 为 32 字节密钥的十六进制表示
func NewKeystore(masterKeyHex string) (*Keystore, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidMasterKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Keystore{aead: aead}, nil
}

// GenerateAddress 生成新钱包，返回小写地址和加密后的私钥
func (k *Keystore) GenerateAddress() (address string, encryptedKey string, err error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}

	addr := crypto.PubkeyToAddress(privateKey.PublicKey)
	encrypted, err := k.Encrypt(hex.EncodeToString(crypto.FromECDSA(privateKey)))
	if err != nil {
		return "", "", err
	}
	return NormalizeAddress(addr.Hex()), encrypted, nil
}

// Encrypt 加密私钥十六进制串
func (k *Keystore) Encrypt(privateKeyHex string) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := k.aead.Seal(nonce, nonce, []byte(privateKeyHex), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密出可用于签名的私钥
func (k *Keystore) Decrypt(encryptedKey string) (*ecdsa.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	if len(raw) < k.aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := raw[:k.aead.NonceSize()], raw[k.aead.NonceSize():]
	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return crypto.HexToECDSA(string(plaintext))
}
