package service

import (
	"crypto/rand"
	"encoding/hex"
)

// tokenBytes is the entropy of OAuth state tokens and webhook secrets.
const tokenBytes = 32

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isHexToken(s string) bool {
	if len(s) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
