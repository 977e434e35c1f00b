package recovery

import (
	"context"
	"sync"
)

// Action is one reversible step recorded against a transaction.
type Action struct {
	Name   string
	Undo   func(ctx context.Context) error
}

type transaction struct {
	id        string
	actions   []Action
	committed bool
}

// RollbackOutcome is rollbackTransaction's result: ok reports whether
// every action undid cleanly, and Partial lists the actions (by name)
// whose undo failed, alongside the error each produced.
type RollbackOutcome struct {
	OK      bool
	Partial map[string]error
}

// Manager tracks in-flight transactions so a pipeline execution that
// fails partway through can undo its already-applied side effects in
// reverse order.
type Manager struct {
	mu           sync.Mutex
	transactions map[string]*transaction
}

func NewManager() *Manager {
	return &Manager{transactions: make(map[string]*transaction)}
}

func (m *Manager) StartTransaction(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[id] = &transaction{id: id}
}

func (m *Manager) RecordAction(id string, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.committed {
		return ErrTransactionCommitted
	}
	tx.actions = append(tx.actions, action)
	return nil
}

// CommitTransaction marks the transaction done; its actions are no
// longer eligible for rollback. Its journal entry stays in the Manager;
// no method removes committed transactions.
func (m *Manager) CommitTransaction(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.committed = true
	return nil
}

// RollbackTransaction undoes a transaction's actions in reverse order,
// continuing past individual undo failures and reporting them as a
// partial rollback rather than stopping at the first error.
func (m *Manager) RollbackTransaction(ctx context.Context, id string) (RollbackOutcome, error) {
	m.mu.Lock()
	tx, ok := m.transactions[id]
	if !ok {
		m.mu.Unlock()
		return RollbackOutcome{}, ErrTransactionNotFound
	}
	if tx.committed {
		m.mu.Unlock()
		return RollbackOutcome{}, ErrTransactionCommitted
	}
	actions := append([]Action(nil), tx.actions...)
	delete(m.transactions, id)
	m.mu.Unlock()

	outcome := RollbackOutcome{OK: true, Partial: make(map[string]error)}
	for i := len(actions) - 1; i >= 0; i-- {
		action := actions[i]
		if action.Undo == nil {
			continue
		}
		if err := action.Undo(ctx); err != nil {
			outcome.OK = false
			outcome.Partial[action.Name] = err
		}
	}
	if len(outcome.Partial) == 0 {
		outcome.Partial = nil
	}
	return outcome, nil
}
