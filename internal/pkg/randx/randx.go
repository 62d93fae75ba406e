/*
Package randx provides cryptographically secure identifiers: Base62 call room ids,
UUID message ids and UUID connection ids.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// CallIDLength is the length of server-generated call room ids.
	CallIDLength = 10

	// MaxCallIDLength bounds client-supplied call room ids.
	MaxCallIDLength = 64
)

// CallID generates a Base62 call room id using crypto/rand.
func CallID() (string, error) {
	result := make([]byte, CallIDLength)

	for i := 0; i < CallIDLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for call id: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// MessageID generates a UUID v7 string used as a message id. Ids sort in
// generation order, including several generated within one millisecond.
func MessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ConnectionID generates a UUID v4 string identifying one transport session.
func ConnectionID() string {
	return uuid.New().String()
}

// IsValidCallID accepts ids of 1..MaxCallIDLength characters drawn from Base62
// plus '-' and '_' (clients generate their own ids, e.g. "call-123").
func IsValidCallID(id string) bool {
	if id == "" || len(id) > MaxCallIDLength {
		return false
	}

	for _, char := range id {
		if char == '-' || char == '_' {
			continue
		}
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}
