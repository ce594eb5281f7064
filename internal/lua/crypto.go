package lua

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

// openCrypto builds the @luma/crypto module: digests, HMAC, base64 and the
// block ciphers. Digest and cipher output is lowercase hex.
func (s *session) openCrypto(L *lua.LState) lua.LValue {
	ud := L.NewUserData()
	mt := L.CreateTable(0, 1)
	idx := L.CreateTable(0, 11)
	idx.RawSetString("base64_encode", L.NewFunction(s.cryptoBase64Encode))
	idx.RawSetString("base64_decode", L.NewFunction(s.cryptoBase64Decode))
	idx.RawSetString("crc32", L.NewFunction(s.cryptoCRC32))
	idx.RawSetString("md5", s.digestFunc(L, md5.New))
	idx.RawSetString("sha1", s.digestFunc(L, sha1.New))
	idx.RawSetString("sha256", s.digestFunc(L, sha256.New))
	idx.RawSetString("sha384", s.digestFunc(L, sha512.New384))
	idx.RawSetString("sha512", s.digestFunc(L, sha512.New))
	idx.RawSetString("hmac", L.NewFunction(s.cryptoHMAC))
	idx.RawSetString("encrypt", L.NewFunction(s.cryptoEncrypt))
	idx.RawSetString("decrypt", L.NewFunction(s.cryptoDecrypt))
	mt.RawSetString("__index", idx)
	L.SetMetatable(ud, mt)
	return ud
}

func (s *session) digestFunc(L *lua.LState, newHash func() hash.Hash) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		h := newHash()
		h.Write([]byte(L.CheckString(2)))
		L.Push(lua.LString(hex.EncodeToString(h.Sum(nil))))
		return 1
	})
}

func (s *session) cryptoBase64Encode(L *lua.LState) int {
	L.Push(lua.LString(base64.StdEncoding.EncodeToString([]byte(L.CheckString(2)))))
	return 1
}

func (s *session) cryptoBase64Decode(L *lua.LState) int {
	decoded, err := base64.StdEncoding.DecodeString(L.CheckString(2))
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleCrypto, Message: err.Error()})
		return 0
	}
	if !utf8.Valid(decoded) {
		s.fail(L, &CapabilityError{Module: ModuleCrypto, Message: "decoded data is not valid utf-8"})
		return 0
	}
	L.Push(lua.LString(decoded))
	return 1
}

func (s *session) cryptoCRC32(L *lua.LState) int {
	L.Push(lua.LString(fmt.Sprintf("%x", crc32.ChecksumIEEE([]byte(L.CheckString(2))))))
	return 1
}

func (s *session) cryptoHMAC(L *lua.LState) int {
	alg := L.CheckString(2)
	data := L.CheckString(3)
	secret := L.CheckString(4)
	var newHash func() hash.Hash
	switch alg {
	case "sha1":
		newHash = sha1.New
	case "sha256":
		newHash = sha256.New
	case "sha384":
		newHash = sha512.New384
	case "sha512":
		newHash = sha512.New
	default:
		s.fail(L, &CapabilityError{Module: ModuleCrypto, Message: fmt.Sprintf("unsupported algorithm %s", alg)})
		return 0
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write([]byte(data))
	L.Push(lua.LString(hex.EncodeToString(mac.Sum(nil))))
	return 1
}

func (s *session) cryptoEncrypt(L *lua.LState) int {
	data := L.CheckString(2)
	method := L.CheckString(3)
	key := L.CheckString(4)
	out, err := encrypt(method, []byte(data), []byte(key), optBytes(L, 5))
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleCrypto, Message: err.Error()})
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

func (s *session) cryptoDecrypt(L *lua.LState) int {
	encrypted := L.CheckString(2)
	method := L.CheckString(3)
	key := L.CheckString(4)
	out, err := decrypt(method, encrypted, []byte(key), optBytes(L, 5))
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleCrypto, Message: err.Error()})
		return 0
	}
	L.Push(lua.LString(out))
	return 1
}

// optBytes reads an optional string argument as bytes, nil when absent.
func optBytes(L *lua.LState, n int) []byte {
	if L.Get(n) == lua.LNil {
		return nil
	}
	return []byte(L.CheckString(n))
}

// encrypt applies PKCS#7 padding and the named cipher and returns the
// ciphertext as lowercase hex. CBC modes need an IV, ECB does not.
func encrypt(method string, data, key, iv []byte) (string, error) {
	block, err := cipherFor(method, key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(data, block.BlockSize())
	out := make([]byte, len(padded))
	switch method {
	case "aes-cbc", "des-cbc":
		if iv == nil {
			return "", errors.New("expect IV as 4th argument")
		}
		if len(iv) != block.BlockSize() {
			return "", fmt.Errorf("invalid IV length %d", len(iv))
		}
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	case "des-ecb":
		for i := 0; i < len(padded); i += block.BlockSize() {
			block.Encrypt(out[i:], padded[i:])
		}
	}
	return hex.EncodeToString(out), nil
}

// decrypt reverses encrypt: hex ciphertext in, the unpadded plaintext out.
// The plaintext must be valid UTF-8.
func decrypt(method, encrypted string, key, iv []byte) (string, error) {
	block, err := cipherFor(method, key)
	if err != nil {
		return "", err
	}
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return "", errors.New("invalid ciphertext length")
	}
	out := make([]byte, len(data))
	switch method {
	case "aes-cbc", "des-cbc":
		if iv == nil {
			return "", errors.New("expect IV as 4th argument")
		}
		if len(iv) != block.BlockSize() {
			return "", fmt.Errorf("invalid IV length %d", len(iv))
		}
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	case "des-ecb":
		for i := 0; i < len(data); i += block.BlockSize() {
			block.Decrypt(out[i:], data[i:])
		}
	}
	plain, err := pkcs7Unpad(out, block.BlockSize())
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", errors.New("decrypted data is not valid utf-8")
	}
	return string(plain), nil
}

func cipherFor(method string, key []byte) (cipher.Block, error) {
	switch method {
	case "aes-cbc":
		return aes.NewCipher(key)
	case "des-cbc", "des-ecb":
		return des.NewCipher(key)
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, errors.New("invalid padding")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
