package gatekit

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// BunStore is the PostgreSQL Store backed by dbkit.
//
// Error Handling:
// Database operations use dbkit's chainable error wrapping, so failures carry
// the operation name and keep the driver error for classification. Expected
// outcomes (missing rows, lost conditional writes) are mapped to gatekit
// sentinels such as ErrNotFound and ErrStatusConflict.
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := gatekit.NewBunStore(db)
//	if _, err := db.Migrate(ctx, store.Migrations()); err != nil {
//	    return err
//	}
type BunStore struct {
	db      dbkit.IDB
	metrics *Metrics
}

var _ Store = (*BunStore)(nil)

// NewBunStore creates a store on db, which may be a *dbkit.DBKit or a *dbkit.Tx.
func NewBunStore(db dbkit.IDB) *BunStore {
	return &BunStore{db: db}
}

// WithMetrics records transaction counts and durations on m.
func (s *BunStore) WithMetrics(m *Metrics) *BunStore {
	s.metrics = m
	return s
}

// ===== TRANSACTIONS =====

// transaction runs fn inside a transaction, or a savepoint when the store
// already wraps one. fn must use the IDB it is given.
func (s *BunStore) transaction(ctx context.Context, fn func(tx dbkit.IDB) error) error {
	return s.transactionWithOptions(ctx, nil, fn)
}

// readOnly runs fn in a read-only transaction so multi-query reads see one snapshot.
func (s *BunStore) readOnly(ctx context.Context, fn func(tx dbkit.IDB) error) error {
	opts := dbkit.ReadOnlyTxOptions()
	return s.transactionWithOptions(ctx, &opts, fn)
}

func (s *BunStore) transactionWithOptions(ctx context.Context, opts *dbkit.TxOptions, fn func(tx dbkit.IDB) error) error {
	start := time.Now()
	var err error

	switch db := s.db.(type) {
	case *dbkit.Tx:
		// Nested: savepoints don't take options.
		err = db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(tx)
		})
	case *dbkit.DBKit:
		if opts != nil {
			err = db.TransactionWithOptions(ctx, *opts, func(tx *dbkit.Tx) error {
				return fn(tx)
			})
		} else {
			err = db.Transaction(ctx, func(tx *dbkit.Tx) error {
				return fn(tx)
			})
		}
	default:
		err = fmt.Errorf("gatekit: transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}

	s.metrics.ObserveStoreTransaction(time.Since(start), err)
	return err
}

// ===== AUTHZ READS =====

// GetUser implements AuthzReader.
func (s *BunStore) GetUser(ctx context.Context, userID string) (*User, error) {
	user := new(User)
	err := dbkit.WithErr1(s.db.NewSelect().Model(user).Where("u.id = ?", userID).Limit(1).Scan(ctx), "GetUser").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// ActiveRoles implements AuthzReader.
func (s *BunStore) ActiveRoles(ctx context.Context, userID string) ([]RoleMembership, error) {
	var roles []RoleMembership
	err := dbkit.WithErr1(s.db.NewRaw(`
        SELECT r.id AS role_id, r.name AS role_name, ut.hierarchy_level
        FROM user_roles AS ur
        JOIN users AS u ON u.id = ur.user_id AND u.is_active
        JOIN roles AS r ON r.id = ur.role_id
        JOIN user_types AS ut ON ut.id = r.user_type_id
        WHERE ur.user_id = ? AND ur.is_active
        ORDER BY ut.hierarchy_level, r.id`, userID).Scan(ctx, &roles), "ActiveRoles").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return roles, nil
}

// RolePermissionIDs implements AuthzReader.
func (s *BunStore) RolePermissionIDs(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := dbkit.WithErr1(s.db.NewRaw(`
        SELECT DISTINCT rp.permission_id
        FROM role_permissions AS rp
        JOIN permissions AS p ON p.id = rp.permission_id AND p.is_active
        WHERE rp.granted AND rp.role_id IN (?)`, bun.In(roleIDs)).Scan(ctx, &ids), "RolePermissionIDs").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

// DirectGrants implements AuthzReader.
func (s *BunStore) DirectGrants(ctx context.Context, userID string) ([]DirectGrant, error) {
	var grants []DirectGrant
	err := dbkit.WithErr1(s.db.NewRaw(`
        SELECT up.permission_id, up.granted, up.expires_at,
               COALESCE(p.is_active, FALSE) AS permission_active
        FROM user_permissions AS up
        LEFT JOIN permissions AS p ON p.id = up.permission_id
        WHERE up.user_id = ?`, userID).Scan(ctx, &grants), "DirectGrants").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return grants, nil
}
