package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidCredentials is returned for unreadable or malformed credentials JSON.
var ErrInvalidCredentials = errors.New("invalid google credentials")

type credentialsFile struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
}

// ValidateCredentials checks that data is a Google credentials document
// carrying the fields its type needs.
func ValidateCredentials(data []byte) error {
	var c credentialsFile
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	switch strings.TrimSpace(c.Type) {
	case "service_account":
		if c.ClientEmail == "" || c.PrivateKey == "" {
			return fmt.Errorf("%w: service account needs client_email and private_key", ErrInvalidCredentials)
		}
	case "authorized_user":
		if c.ClientID == "" || c.RefreshToken == "" {
			return fmt.Errorf("%w: authorized user needs client_id and refresh_token", ErrInvalidCredentials)
		}
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidCredentials)
	}
	return nil
}

// ReadCredentialsFile loads and validates a credentials file from disk.
func ReadCredentialsFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err := ValidateCredentials(data); err != nil {
		return nil, err
	}
	return data, nil
}
