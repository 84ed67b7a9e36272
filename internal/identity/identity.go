// Package identity establishes the per-instance customer and session
// identity attached to every outbound query.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/deskhaus/deskchat/internal/domain"
)

const (
	customerIDPrefix = "cust_"
	sessionIDPrefix  = "sess_"
	idEntropyBytes   = 16
)

var (
	customerIDPattern = regexp.MustCompile(`^cust_[a-f0-9]{32}$`)
	sessionIDPattern  = regexp.MustCompile(`^sess_[a-f0-9]{32}$`)
)

// NewSession generates a fresh identity pair. The identifiers are derived
// from crypto/rand, so collisions between two client instances are
// negligible. The returned Session must outlive the client instance
// unchanged; every reconnect and every query carries the same pair.
func NewSession() (domain.Session, error) {
	customerID, err := generateID(customerIDPrefix)
	if err != nil {
		return domain.Session{}, fmt.Errorf("generate customer id: %w", err)
	}
	sessionID, err := generateID(sessionIDPrefix)
	if err != nil {
		return domain.Session{}, fmt.Errorf("generate session id: %w", err)
	}
	return domain.Session{CustomerID: customerID, SessionID: sessionID}, nil
}

func generateID(prefix string) (string, error) {
	buf := make([]byte, idEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(buf), nil
}

// ValidCustomerID reports whether id has the shape NewSession produces.
func ValidCustomerID(id string) bool {
	return customerIDPattern.MatchString(id)
}

// ValidSessionID reports whether id has the shape NewSession produces.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
