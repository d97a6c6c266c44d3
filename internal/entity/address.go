package entity

import (
	"encoding/json"
	"fmt"
)

// Address is the structured form of the shipping and billing blobs stored on an order.
type Address struct {
	FullName     string         `json:"fullName,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	AddressLine1 string         `json:"addressLine1,omitempty"`
	AddressLine2 string         `json:"addressLine2,omitempty"`
	City         string         `json:"city,omitempty"`
	Region       string         `json:"region,omitempty"`
	PostalCode   string         `json:"postalCode,omitempty"`
	Country      string         `json:"country,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// EncodeAddress renders addr as the JSON text stored in the database.
// A nil address encodes to the empty string.
func EncodeAddress(addr *Address) (string, error) {
	if addr == nil {
		return "", nil
	}
	raw, err := json.Marshal(addr)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}
	return string(raw), nil
}

// DecodeAddress parses a stored address blob. The empty string decodes to nil.
func DecodeAddress(raw string) (*Address, error) {
	if raw == "" {
		return nil, nil
	}
	var addr Address
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &addr, nil
}
