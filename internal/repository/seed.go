package repository

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
)

type accountSeed struct {
	ID             string `yaml:"id"`
	CardholderName string `yaml:"cardholder_name"`
	Email          string `yaml:"email"`
	CardLast4      string `yaml:"card_last4"`
	CredentialID   string `yaml:"credential_id"`
	Balance        string `yaml:"balance"`
	PIN            string `yaml:"pin"`
	PINHash        string `yaml:"pin_hash"`
}

type accountSeedFile struct {
	Accounts []accountSeed `yaml:"accounts"`
}

// LoadAccountsYAML reads development accounts for the in-memory store.
// Plain pins are hashed on load.
func LoadAccountsYAML(path string) ([]*models.Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	return ParseAccountsYAML(raw)
}

func ParseAccountsYAML(raw []byte) ([]*models.Account, error) {
	var file accountSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	accounts := make([]*models.Account, 0, len(file.Accounts))
	for i, s := range file.Accounts {
		if s.ID == "" || s.CardholderName == "" || len(s.CardLast4) != 4 {
			return nil, fmt.Errorf("account %d: id, cardholder_name and a 4 digit card_last4 are required", i)
		}
		balance, err := decimal.NewFromString(defaultString(s.Balance, "0"))
		if err != nil {
			return nil, fmt.Errorf("account %s: balance: %w", s.ID, err)
		}
		hash := s.PINHash
		if hash == "" {
			if s.PIN == "" {
				return nil, fmt.Errorf("account %s: pin or pin_hash is required", s.ID)
			}
			if hash, err = models.HashPIN(s.PIN, 0); err != nil {
				return nil, fmt.Errorf("account %s: hash pin: %w", s.ID, err)
			}
		}
		accounts = append(accounts, &models.Account{
			ID:             s.ID,
			CardholderName: s.CardholderName,
			Email:          s.Email,
			CardLast4:      s.CardLast4,
			CredentialID:   s.CredentialID,
			Balance:        balance,
			PINHash:        hash,
		})
	}
	return accounts, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
