package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/hex"
	"relix.lol/p256k"
)

// ComputeSharedSecret returns the X coordinate of the secp256k1 ECDH product
// of the hex encoded secret key and x-only public key. The legacy scheme
// uses this value directly as the cipher key, the versioned scheme runs it
// through a hkdf first.
func ComputeSharedSecret(pkh, skh string) (shared []byte, err error) {
	var skb, pkb []byte
	if skb, err = hex.Dec(skh); chk.E(err) {
		return
	}
	if pkb, err = hex.Dec(pkh); chk.E(err) {
		return
	}
	sign := &p256k.Signer{}
	if err = sign.InitSec(skb); chk.E(err) {
		return
	}
	defer sign.Zero()
	if shared, err = sign.ECDH(pkb); chk.E(err) {
		return
	}
	return
}

// EncryptNip04 encrypts a message with the shared secret using AES-256-CBC,
// producing the legacy `base64(ciphertext)?iv=base64(iv)` content form.
func EncryptNip04(message string, key []byte) (content string, err error) {
	var block cipher.Block
	if block, err = aes.NewCipher(key); chk.E(err) {
		return
	}
	iv := make([]byte, aes.BlockSize)
	if _, err = rand.Read(iv); chk.E(err) {
		return
	}
	// PKCS#5 style padding, always at least one byte
	plain := []byte(message)
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	content = base64.StdEncoding.EncodeToString(ct) + "?iv=" +
		base64.StdEncoding.EncodeToString(iv)
	return
}

// DecryptNip04 reverses EncryptNip04. The scheme carries no authenticator so
// a wrong key usually surfaces as a padding error, and on unlucky inputs as
// garbage plaintext.
func DecryptNip04(content string, key []byte) (message string, err error) {
	parts := strings.Split(content, "?iv=")
	if len(parts) != 2 {
		err = errorf.E("missing iv in encrypted content")
		return
	}
	var ct, iv []byte
	if ct, err = base64.StdEncoding.DecodeString(parts[0]); chk.E(err) {
		return
	}
	if iv, err = base64.StdEncoding.DecodeString(parts[1]); chk.E(err) {
		return
	}
	if len(iv) != aes.BlockSize {
		err = errorf.E("iv must be %d bytes, got %d", aes.BlockSize,
			len(iv))
		return
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		err = errorf.E("ciphertext length %d is not a multiple of %d",
			len(ct), aes.BlockSize)
		return
	}
	var block cipher.Block
	if block, err = aes.NewCipher(key); chk.E(err) {
		return
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(plain) {
		err = errorf.E("invalid padding")
		return
	}
	message = string(plain[:len(plain)-pad])
	return
}
