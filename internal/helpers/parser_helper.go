package helpers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

func deriveKey(secret string) []byte {
	hash := sha256.Sum256([]byte(secret))
	return hash[:]
}

var secretKey = deriveKey(os.Getenv("JWT_SECRET"))

// EncryptCheckoutRef packs the purchased membership and optional affiliate
// attribution into an opaque reference that survives the round-trip through
// the payment gateway.
func EncryptCheckoutRef(membershipID uuid.UUID, affiliateID *uuid.UUID) string {
	plaintext := membershipID.String()
	if affiliateID != nil {
		plaintext = fmt.Sprintf("%s|%s", membershipID.String(), affiliateID.String())
	}

	block, _ := aes.NewCipher(secretKey)
	gcm, _ := cipher.NewGCM(block)
	nonce := make([]byte, gcm.NonceSize())
	io.ReadFull(rand.Reader, nonce)

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(ciphertext)
}

func DecryptCheckoutRef(encrypted string) (membershipID uuid.UUID, affiliateID *uuid.UUID, err error) {
	data, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return uuid.Nil, nil, err
	}

	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return uuid.Nil, nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return uuid.Nil, nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return uuid.Nil, nil, fmt.Errorf("invalid cipher text")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return uuid.Nil, nil, err
	}

	parts := strings.Split(string(plaintext), "|")
	membershipID, err = uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid membership ID format")
	}
	if len(parts) == 1 {
		return membershipID, nil, nil
	}
	if len(parts) == 2 {
		parsedAffiliateID, err := uuid.Parse(parts[1])
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid affiliate ID format")
		}
		return membershipID, &parsedAffiliateID, nil
	}

	return uuid.Nil, nil, fmt.Errorf("invalid plaintext format")
}

// ExtractCheckoutRef peels the invoice prefix off an external id of the form
// MBR-<timestamp>-<encrypted>.
func ExtractCheckoutRef(externalID string) (uuid.UUID, *uuid.UUID, error) {
	parts := strings.Split(externalID, "-")
	if len(parts) < 3 {
		return uuid.Nil, nil, fmt.Errorf("invalid external ID format")
	}

	encryptedPart := strings.Join(parts[2:], "-")

	return DecryptCheckoutRef(encryptedPart)
}
