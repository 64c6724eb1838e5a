package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// txState is the transaction carried by a context together with the work
// deferred until it ends
type txState struct {
	tx         *gorm.DB
	onCommit   []func(context.Context)
	onRollback []func(context.Context)
}

// WithTx returns a context carrying tx. Repositories resolve their connection
// through Conn so work started with this context joins the transaction.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, &txState{tx: tx})
}

func stateFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{}).(*txState)
	return st, ok && st != nil && st.tx != nil
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (*gorm.DB, bool) {
	st, ok := stateFrom(ctx)
	if !ok {
		return nil, false
	}
	return st.tx, true
}

// Conn returns the transaction carried by ctx or db bound to ctx.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := TxFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// AfterCommit runs fn once the transaction carried by ctx commits, or right
// away when ctx carries none. Use it for side effects that cannot be rolled
// back, such as deleting files.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if st, ok := stateFrom(ctx); ok {
		st.onCommit = append(st.onCommit, fn)
		return
	}
	fn(ctx)
}

// OnRollback runs fn when the transaction carried by ctx rolls back. Outside
// a transaction it does nothing.
func OnRollback(ctx context.Context, fn func(ctx context.Context)) {
	if st, ok := stateFrom(ctx); ok {
		st.onRollback = append(st.onRollback, fn)
	}
}

// Transaction runs fn in a transaction. When ctx already carries one, fn joins
// it instead of opening a nested transaction.
//
// Callbacks registered with AfterCommit and OnRollback run after the
// outermost transaction ends, in registration order, with the caller's
// context.
func Transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	var st *txState
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := WithTx(ctx, tx)
		st, _ = stateFrom(txCtx)
		return fn(txCtx)
	})
	if st == nil {
		return err
	}

	hooks := st.onCommit
	if err != nil {
		hooks = st.onRollback
	}
	for _, h := range hooks {
		h(ctx)
	}
	return err
}
