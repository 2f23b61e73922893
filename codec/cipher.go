package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blowfish"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidLength     = errors.New("invalid plaintext length")
)

// Cipher is the redirect payload cipher: Blowfish in ECB mode keyed with the
// raw password bytes, zero padding, uppercase hex transport encoding.
// It holds no mutable state and is safe for concurrent use.
type Cipher struct {
	block *blowfish.Cipher
}

// NewCipher returns a Cipher for password. Blowfish accepts 1 to 56 key bytes.
func NewCipher(password string) (*Cipher, error) {
	block, err := blowfish.NewCipher([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("blowfish key: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt pads plain with zero bytes to the block size and returns the
// ciphertext as uppercase hex.
func (c *Cipher) Encrypt(plain []byte) string {
	size := len(plain)
	if rem := size % blowfish.BlockSize; rem != 0 {
		size += blowfish.BlockSize - rem
	}
	buf := make([]byte, size)
	copy(buf, plain)

	for off := 0; off < size; off += blowfish.BlockSize {
		c.block.Encrypt(buf[off:off+blowfish.BlockSize], buf[off:off+blowfish.BlockSize])
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// Decrypt reverses Encrypt and truncates the result to length bytes, which
// the gateway transmits alongside the data.
func (c *Cipher) Decrypt(data string, length int) ([]byte, error) {
	buf, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(buf) == 0 || len(buf)%blowfish.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of blocks", ErrInvalidCiphertext, len(buf))
	}
	if length < 0 || length > len(buf) {
		return nil, fmt.Errorf("%w: %d (ciphertext holds %d bytes)", ErrInvalidLength, length, len(buf))
	}

	for off := 0; off < len(buf); off += blowfish.BlockSize {
		c.block.Decrypt(buf[off:off+blowfish.BlockSize], buf[off:off+blowfish.BlockSize])
	}
	return buf[:length], nil
}
