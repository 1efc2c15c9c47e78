package bank

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
)

// LoadState reads the bank state from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*model.BankState, error) {
	empty := &model.BankState{Accounts: make(map[string]map[string]decimal.Decimal)}
	if filePath == "" {
		return empty, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, err
	}
	var state model.BankState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Accounts == nil {
		state.Accounts = make(map[string]map[string]decimal.Decimal)
	}
	return &state, nil
}

// SaveState writes the bank state to a JSON file. An empty path keeps the state in memory only.
func SaveState(filePath string, state *model.BankState) error {
	state.UpdatedAt = time.Now()
	if filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
