package bank

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrCurrencyNotFound  = errors.New("currency not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// refRetention is how long applied deposit refs are remembered.
const refRetention = 30 * 24 * time.Hour

// Manager holds account balances per currency with concurrency safety.
type Manager struct {
	mu         sync.Mutex
	currencies map[string]model.Currency
	state      *model.BankState
	filePath   string
}

// NewManager creates a Manager, loading state from disk when filePath is set.
func NewManager(filePath string, currencies []model.Currency) (*Manager, error) {
	state, err := LoadState(filePath)
	if err != nil {
		return nil, fmt.Errorf("load bank state: %w", err)
	}

	m := &Manager{
		currencies: make(map[string]model.Currency, len(currencies)),
		state:      state,
		filePath:   filePath,
	}
	for _, c := range currencies {
		m.currencies[c.Name] = c
	}
	if err := m.save(); err != nil {
		return nil, fmt.Errorf("save bank state: %w", err)
	}
	return m, nil
}

// Currency looks up a currency by name.
func (m *Manager) Currency(name string) (model.Currency, error) {
	c, ok := m.currencies[name]
	if !ok {
		return model.Currency{}, fmt.Errorf("%w: %q", ErrCurrencyNotFound, name)
	}
	return c, nil
}

// Deposit credits amount, rounded to the currency precision, to an account.
// Accounts and per-currency balances are created on first use.
func (m *Manager) Deposit(account string, amount decimal.Decimal, currency string) error {
	_, err := m.DepositOnce("", account, amount, currency)
	return err
}

// DepositOnce is Deposit keyed by ref. A ref that was already credited is
// skipped and reports false. The ref is written with the new balance, so a
// deposit replayed after a crash is never paid twice. An empty ref always
// deposits.
func (m *Manager) DepositOnce(ref, account string, amount decimal.Decimal, currency string) (bool, error) {
	if amount.IsNegative() {
		return false, fmt.Errorf("deposit %s: %w", amount, ErrInvalidAmount)
	}
	cur, err := m.Currency(currency)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.state.Applied[ref]; ref != "" && done {
		return false, nil
	}

	balances := m.state.Accounts[account]
	if balances == nil {
		balances = make(map[string]decimal.Decimal)
		m.state.Accounts[account] = balances
	}
	balances[cur.Name] = cur.Round(balances[cur.Name].Add(amount))
	m.state.Deposits++
	if ref != "" {
		m.markApplied(ref, time.Now())
	}

	if err := m.save(); err != nil {
		log.Printf("[ERROR] failed to save bank state after deposit: %v", err)
	}
	return true, nil
}

func (m *Manager) markApplied(ref string, now time.Time) {
	if m.state.Applied == nil {
		m.state.Applied = make(map[string]time.Time)
	}
	cutoff := now.Add(-refRetention)
	for r, at := range m.state.Applied {
		if at.Before(cutoff) {
			delete(m.state.Applied, r)
		}
	}
	m.state.Applied[ref] = now
}

// Withdraw debits amount from an account. The balance may not go below zero.
func (m *Manager) Withdraw(account string, amount decimal.Decimal, currency string) error {
	if amount.IsNegative() {
		return fmt.Errorf("withdraw %s: %w", amount, ErrInvalidAmount)
	}
	cur, err := m.Currency(currency)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	balances := m.state.Accounts[account]
	balance := balances[cur.Name]
	if balances == nil || amount.GreaterThan(balance) {
		return fmt.Errorf("withdraw %s from %s: %w", cur.Format(amount), account, ErrInsufficientFunds)
	}
	balances[cur.Name] = cur.Round(balance.Sub(amount))

	if err := m.save(); err != nil {
		log.Printf("[ERROR] failed to save bank state after withdraw: %v", err)
	}
	return nil
}

// Balance returns the balance of one currency in an account, zero when unknown.
func (m *Manager) Balance(account, currency string) (decimal.Decimal, error) {
	cur, err := m.Currency(currency)
	if err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Accounts[account][cur.Name], nil
}

// Convert expresses amount of one currency in another using their relative values.
func (m *Manager) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("convert %s: %w", amount, ErrInvalidAmount)
	}
	src, err := m.Currency(from)
	if err != nil {
		return decimal.Zero, err
	}
	dst, err := m.Currency(to)
	if err != nil {
		return decimal.Zero, err
	}
	if src.Name == dst.Name {
		return amount, nil
	}
	if src.Value == 0 {
		return decimal.Zero, fmt.Errorf("convert from %s: currency has no value", src.Name)
	}
	converted := amount.Div(decimal.NewFromInt(src.Value)).Mul(decimal.NewFromInt(dst.Value))
	return dst.Round(converted), nil
}

// GetState returns a copy of the current bank state.
func (m *Manager) GetState() model.BankState {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := model.BankState{
		Accounts:  make(map[string]map[string]decimal.Decimal, len(m.state.Accounts)),
		Deposits:  m.state.Deposits,
		UpdatedAt: m.state.UpdatedAt,
	}
	for acct, balances := range m.state.Accounts {
		b := make(map[string]decimal.Decimal, len(balances))
		for c, v := range balances {
			b[c] = v
		}
		cp.Accounts[acct] = b
	}
	return cp
}

func (m *Manager) save() error {
	return SaveState(m.filePath, m.state)
}
