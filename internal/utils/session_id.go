package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	sessionIDLength = 16
	sessionIDChars  = "abcdefghjkmnpqrstuvwxyz23456789" // Removed ambiguous: i, l, o, 0, 1
)

// GenerateSessionID generates a random identifier for scan sessions
func GenerateSessionID() string {
	var sb strings.Builder
	for i := 0; i < sessionIDLength; i++ {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(sessionIDChars))))
		sb.WriteByte(sessionIDChars[idx.Int64()])
	}
	return sb.String()
}
