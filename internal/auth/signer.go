package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Nonce generates the per-request nonce: 8 random bytes followed by the
// current time in minutes. Ensure your system clock is synced! Time drift
// will cause the cloud to reject the signature.
func Nonce() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf[:8])
	binary.BigEndian.PutUint32(buf[8:], uint32(time.Now().Unix()/60))
	return base64.StdEncoding.EncodeToString(buf)
}

// SignedNonce derives the per-request key material from the account ssecurity
// and the request nonce.
func SignedNonce(ssecurity, nonce string) (string, error) {
	sec, err := base64.StdEncoding.DecodeString(ssecurity)
	if err != nil {
		return "", fmt.Errorf("decode ssecurity: %w", err)
	}
	non, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	h := sha256.New()
	h.Write(sec)
	h.Write(non)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Signature computes the request signature over method, path and the sorted
// parameters, keyed by the signed nonce.
//
// Signed payload format: METHOD&path&k1=v1&k2=v2&...&signedNonce
func Signature(method, path string, params map[string]string, signedNonce string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(params)+3)
	parts = append(parts, strings.ToUpper(method), path)
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	parts = append(parts, signedNonce)
	payload := strings.Join(parts, "&")

	key, _ := base64.StdEncoding.DecodeString(signedNonce)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// rc4Cipher builds the stream cipher for a signed nonce, discarding the first
// 1024 bytes of keystream as the protocol requires.
func rc4Cipher(signedNonce string) (*rc4.Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(signedNonce)
	if err != nil {
		return nil, fmt.Errorf("decode signed nonce: %w", err)
	}
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	discard := make([]byte, 1024)
	c.XORKeyStream(discard, discard)
	return c, nil
}

// EncryptParam encrypts one parameter value for transport.
func EncryptParam(signedNonce, value string) (string, error) {
	c, err := rc4Cipher(signedNonce)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(value))
	c.XORKeyStream(out, []byte(value))
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptBody decrypts an encrypted response body.
func DecryptBody(signedNonce string, body []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	c, err := rc4Cipher(signedNonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	c.XORKeyStream(out, raw)
	return out, nil
}

// PasswordHash returns the uppercase MD5 digest the account login expects.
func PasswordHash(password string) string {
	sum := md5.Sum([]byte(password))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}
