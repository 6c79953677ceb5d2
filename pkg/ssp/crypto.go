// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ssp

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"math/bits"
)

// Key exchange parameters
const (
	primeBits     = 16
	hostRandomMax = 1 << 31
	KeySize       = 16 // AES-128
	FixedKeySize  = 8
)

// EncryptBlock encrypts plaintext with AES-128 in ECB mode without padding.
func EncryptBlock(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: AES key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d is not a multiple of %d", len(plaintext), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}
	return out, nil
}

// DecryptBlock is the inverse of EncryptBlock.
func DecryptBlock(key, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: AES key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d",
			ErrDecryption, len(ciphertext), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return out, nil
}

// KeyPair holds the host side of the key exchange
type KeyPair struct {
	Generator  uint64
	Modulus    uint64
	HostRandom uint64
	HostInter  uint64
}

// GenerateKeyPair draws a fresh generator, modulus and host random value.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(r io.Reader) (*KeyPair, error) {
	g, err := rand.Prime(r, primeBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate generator: %w", err)
	}
	var p *big.Int
	for p == nil || p.Cmp(g) == 0 {
		if p, err = rand.Prime(r, primeBits); err != nil {
			return nil, fmt.Errorf("failed to generate modulus: %w", err)
		}
	}

	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("failed to generate host random: %w", err)
	}
	hostRandom := uint64(binary.LittleEndian.Uint32(buf[:])) % hostRandomMax

	return newKeyPair(g.Uint64(), p.Uint64(), hostRandom)
}

func newKeyPair(generator, modulus, hostRandom uint64) (*KeyPair, error) {
	if generator == 0 || modulus == 0 {
		return nil, fmt.Errorf("%w: generator and modulus must be > 0", ErrKeyExchange)
	}
	if generator < modulus {
		generator, modulus = modulus, generator
	}
	return &KeyPair{
		Generator:  generator,
		Modulus:    modulus,
		HostRandom: hostRandom,
		HostInter:  ModExp(generator, hostRandom, modulus),
	}, nil
}

// ModExp returns base^exp mod m using 128-bit intermediates.
// It panics if m is zero.
func ModExp(base, exp, m uint64) uint64 {
	if m == 1 {
		return 0
	}
	result := uint64(1)
	base %= m
	for exp > 0 {
		if exp&1 == 1 {
			result = mulMod(result, base, m)
		}
		base = mulMod(base, base, m)
		exp >>= 1
	}
	return result
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

// SessionKey is the result of a completed key exchange
type SessionKey struct {
	SlaveInterKey uint64
	Key           uint64
	EncryptKey    []byte
}

// DeriveSessionKey combines the device's intermediate key with the host
// secret. The AES key is the byte-swapped fixed key followed by the
// negotiated key in little-endian order.
func DeriveSessionKey(slaveInter, fixedKey []byte, hostRandom, modulus uint64) (*SessionKey, error) {
	if len(slaveInter) < 8 {
		return nil, fmt.Errorf("%w: slave intermediate key is %d bytes, want 8", ErrKeyExchange, len(slaveInter))
	}
	if len(fixedKey) != FixedKeySize {
		return nil, fmt.Errorf("%w: fixed key is %d bytes, want %d", ErrInvalidKey, len(fixedKey), FixedKeySize)
	}
	if modulus == 0 {
		return nil, fmt.Errorf("%w: modulus not set", ErrKeyExchange)
	}

	slaveInterKey := binary.LittleEndian.Uint64(slaveInter[:8])
	key := ModExp(slaveInterKey, hostRandom, modulus)

	encryptKey := make([]byte, 0, KeySize)
	encryptKey = append(encryptKey, swap64(fixedKey)...)
	encryptKey = binary.LittleEndian.AppendUint64(encryptKey, key)

	return &SessionKey{
		SlaveInterKey: slaveInterKey,
		Key:           key,
		EncryptKey:    encryptKey,
	}, nil
}

// ParseFixedKey decodes the 16 hex digit fixed key
func ParseFixedKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: fixed key: %v", ErrInvalidKey, err)
	}
	if len(key) != FixedKeySize {
		return nil, fmt.Errorf("%w: fixed key must be %d bytes, got %d", ErrInvalidKey, FixedKeySize, len(key))
	}
	return key, nil
}

// swap64 reverses the byte order of every 8-byte group
func swap64(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+8 <= len(b); i += 8 {
		for j := 0; j < 8; j++ {
			out[i+j] = b[i+7-j]
		}
	}
	return out
}
