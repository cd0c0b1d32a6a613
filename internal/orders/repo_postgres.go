package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRepo struct{ DB *pgxpool.Pool }

const orderCols = `id, user_id, product_id, package_id, price, credential_id, state, reason,
	proof_ref, settled, created_at, updated_at, expires_at, resolved_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var state string
	err := row.Scan(&o.ID, &o.UserID, &o.Package.ProductID, &o.Package.PackageID, &o.Price,
		&o.CredentialID, &state, &o.Reason, &o.ProofRef, &o.Settled,
		&o.CreatedAt, &o.UpdatedAt, &o.ExpiresAt, &o.ResolvedAt)
	o.State = State(state)
	return o, err
}

func (r *PGRepo) Create(ctx context.Context, o Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, user_id, product_id, package_id, price, credential_id, state,
		                   reason, proof_ref, settled, created_at, updated_at, expires_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.UserID, o.Package.ProductID, o.Package.PackageID, o.Price, o.CredentialID,
		string(o.State), o.Reason, o.ProofRef, o.Settled, o.CreatedAt, o.UpdatedAt, o.ExpiresAt, o.ResolvedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("order %s: %w", o.ID, shop.ErrDuplicateID)
	}
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", id, shop.ErrNotFound)
	}
	return o, err
}

func (r *PGRepo) Transition(ctx context.Context, next Order, from State) error {
	if !CanTransition(from, next.State) {
		return fmt.Errorf("order %s %s -> %s: %w", next.ID, from, next.State, shop.ErrInvalidTransition)
	}
	// compare-and-set: hanya berhasil kalau state di DB masih = from
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET product_id=$3, package_id=$4, price=$5, credential_id=$6, state=$7,
		       reason=$8, proof_ref=$9, settled=$10, updated_at=$11, expires_at=$12, resolved_at=$13
		WHERE id=$1 AND state=$2`,
		next.ID, string(from), next.Package.ProductID, next.Package.PackageID, next.Price,
		next.CredentialID, string(next.State), next.Reason, next.ProofRef, next.Settled,
		next.UpdatedAt, next.ExpiresAt, next.ResolvedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	cur, err := r.Get(ctx, next.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("order %s is %s, not %s: %w", next.ID, cur.State, from, shop.ErrInvalidTransition)
}

func (r *PGRepo) MarkSettled(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET settled=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, shop.ErrNotFound)
	}
	return nil
}

func (r *PGRepo) list(ctx context.Context, where string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepo) ListDue(ctx context.Context, now time.Time) ([]Order, error) {
	return r.list(ctx, `state IN ($1, $2) AND expires_at <= $3 ORDER BY created_at, id`,
		string(StateAwaitingProof), string(StatePendingVerification), now)
}

func (r *PGRepo) ListUnsettled(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `state IN ($1, $2) AND NOT settled ORDER BY created_at, id`,
		string(StateFulfilled), string(StateExpired))
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `user_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
}

func (r *PGRepo) ListByState(ctx context.Context, state State) ([]Order, error) {
	return r.list(ctx, `state=$1 ORDER BY created_at, id`, string(state))
}

func (r *PGRepo) HasOpenForPackage(ctx context.Context, key shop.PackageKey) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE product_id=$1 AND package_id=$2 AND state NOT IN ($3, $4)`,
		key.ProductID, key.PackageID, string(StateFulfilled), string(StateExpired)).Scan(&n)
	return n > 0, err
}
