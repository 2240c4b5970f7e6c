// Package memdb is a small transactional in-memory database backing the
// server when no PostgreSQL DSN is configured. Rollback replays an undo log.
//
// It is a development and test backend. A single mutex guards every table,
// so one transaction runs at a time across all accounts: sync rounds of
// unrelated accounts queue behind each other. Production deployments use the
// PostgreSQL repositories, where only rounds of the same account contend on
// the account row lock.
package memdb

import (
	"sort"
	"sync"

	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
)

// SlotKey addresses one slot.
type SlotKey struct {
	AccountID  string
	EntityType proto.EntityType
	ID         string
}

// DB holds all tables.
type DB struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	names    map[string]string
	tokens   map[string]models.Token
	slots    map[SlotKey]models.Slot
}

func New() *DB {
	return &DB{
		accounts: make(map[string]models.Account),
		names:    make(map[string]string),
		tokens:   make(map[string]models.Token),
		slots:    make(map[SlotKey]models.Slot),
	}
}

// Conn is implemented by both *DB (auto-commit) and *Tx.
type Conn interface {
	Do(fn func(tx *Tx) error) error
}

// Do runs fn in its own transaction.
func (db *DB) Do(fn func(tx *Tx) error) error {
	tx := db.Begin()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return nil
}

// Begin locks the whole database, for every account, until Commit or
// Rollback.
func (db *DB) Begin() *Tx {
	db.mu.Lock()
	return &Tx{db: db}
}

// Tx is an open transaction.
type Tx struct {
	db   *DB
	undo []func()
	done bool
}

// Do runs fn inside the already open transaction.
func (tx *Tx) Do(fn func(tx *Tx) error) error {
	return fn(tx)
}

func (tx *Tx) Commit() {
	if tx.done {
		return
	}
	tx.done = true
	tx.undo = nil
	tx.db.mu.Unlock()
}

func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.db.mu.Unlock()
}

func (tx *Tx) Account(id string) (models.Account, bool) {
	a, ok := tx.db.accounts[id]
	return a, ok
}

func (tx *Tx) AccountByName(name string) (models.Account, bool) {
	id, ok := tx.db.names[name]
	if !ok {
		return models.Account{}, false
	}
	return tx.Account(id)
}

func (tx *Tx) PutAccount(a models.Account) {
	prev, existed := tx.db.accounts[a.ID]
	tx.db.accounts[a.ID] = a
	tx.db.names[a.Name] = a.ID
	tx.undo = append(tx.undo, func() {
		delete(tx.db.names, a.Name)
		if existed {
			tx.db.accounts[a.ID] = prev
			tx.db.names[prev.Name] = prev.ID
		} else {
			delete(tx.db.accounts, a.ID)
		}
	})
}

// Accounts returns all accounts ordered by name.
func (tx *Tx) Accounts() []models.Account {
	out := make([]models.Account, 0, len(tx.db.accounts))
	for _, a := range tx.db.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (tx *Tx) Token(id string) (models.Token, bool) {
	t, ok := tx.db.tokens[id]
	return t, ok
}

func (tx *Tx) PutToken(t models.Token) {
	prev, existed := tx.db.tokens[t.ID]
	tx.db.tokens[t.ID] = t
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.db.tokens[t.ID] = prev
		} else {
			delete(tx.db.tokens, t.ID)
		}
	})
}

func (tx *Tx) Slot(k SlotKey) (models.Slot, bool) {
	s, ok := tx.db.slots[k]
	return s, ok
}

func (tx *Tx) PutSlot(s models.Slot) {
	k := SlotKey{AccountID: s.AccountID, EntityType: s.EntityType, ID: s.ID}
	prev, existed := tx.db.slots[k]
	tx.db.slots[k] = s
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.db.slots[k] = prev
		} else {
			delete(tx.db.slots, k)
		}
	})
}

// SlotsSince returns the account's slots with seq > since, ordered by seq.
func (tx *Tx) SlotsSince(accountID string, since int64) []models.Slot {
	var out []models.Slot
	for k, s := range tx.db.slots {
		if k.AccountID == accountID && s.Seq > since {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].ID < out[j].ID
	})
	return out
}
