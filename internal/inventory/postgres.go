package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-premium-store/internal/postgres"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists the catalog and pools in Postgres. Pool mutations rely on
// row locks (FOR UPDATE SKIP LOCKED) so two reservations never pick the same row.
type PGStore struct{ DB *pgxpool.Pool }

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func mapPgErr(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, shop.ErrDuplicateID)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, shop.ErrNotFound)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, shop.ErrNotFound)
	}
	return err
}

func (s *PGStore) AddProduct(ctx context.Context, p Product) error {
	if err := shop.Validate(p); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, category, description)
		VALUES ($1, $2, $3, $4)`, p.ID, p.Name, p.Category, p.Description)
	if err != nil {
		return mapPgErr(err, "product "+p.ID)
	}
	return nil
}

func (s *PGStore) UpdateProduct(ctx context.Context, p Product) error {
	if err := shop.Validate(p); err != nil {
		return err
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE products SET name=$2, category=$3, description=$4, updated_at=now()
		WHERE id=$1`, p.ID, p.Name, p.Category, p.Description)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", p.ID, shop.ErrNotFound)
	}
	return nil
}

func (s *PGStore) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, category, description, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, mapPgErr(err, "product "+id)
	}
	return p, nil
}

func (s *PGStore) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, category, description, created_at, updated_at
		FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) AddPackage(ctx context.Context, p Package) error {
	if err := shop.Validate(p); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO packages(product_id, id, name, price)
		VALUES ($1, $2, $3, $4)`, p.Key.ProductID, p.Key.PackageID, p.Name, p.Price)
	if err != nil {
		return mapPgErr(err, "package "+p.Key.String())
	}
	return nil
}

const packageCols = `product_id, id, name, price, archived, created_at, updated_at`

func scanPackage(row pgx.Row) (Package, error) {
	var p Package
	err := row.Scan(&p.Key.ProductID, &p.Key.PackageID, &p.Name, &p.Price, &p.Archived, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PGStore) GetPackage(ctx context.Context, key shop.PackageKey) (Package, error) {
	p, err := scanPackage(s.DB.QueryRow(ctx,
		`SELECT `+packageCols+` FROM packages WHERE product_id=$1 AND id=$2`, key.ProductID, key.PackageID))
	if err != nil {
		return Package{}, mapPgErr(err, "package "+key.String())
	}
	return p, nil
}

func (s *PGStore) SetPrice(ctx context.Context, key shop.PackageKey, price int64) error {
	if price <= 0 {
		return fmt.Errorf("price %d: %w", price, shop.ErrInvalidInput)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE packages SET price=$3, updated_at=now()
		WHERE product_id=$1 AND id=$2`, key.ProductID, key.PackageID, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("package %s: %w", key, shop.ErrNotFound)
	}
	return nil
}

func (s *PGStore) ArchivePackage(ctx context.Context, key shop.PackageKey) error {
	return postgres.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		// lock baris package supaya tidak ada reservasi baru selama dicek
		var archived bool
		if err := tx.QueryRow(ctx, `
			SELECT archived FROM packages WHERE product_id=$1 AND id=$2 FOR UPDATE`,
			key.ProductID, key.PackageID).Scan(&archived); err != nil {
			return mapPgErr(err, "package "+key.String())
		}
		var reserved int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM credentials
			WHERE product_id=$1 AND package_id=$2 AND status='reserved'`,
			key.ProductID, key.PackageID).Scan(&reserved); err != nil {
			return err
		}
		if reserved > 0 {
			return fmt.Errorf("package %s has %d reserved credentials: %w", key, reserved, shop.ErrInvalidTransition)
		}
		_, err := tx.Exec(ctx, `
			UPDATE packages SET archived=true, updated_at=now()
			WHERE product_id=$1 AND id=$2`, key.ProductID, key.PackageID)
		return err
	})
}

func (s *PGStore) ListAvailablePackages(ctx context.Context, productID string) ([]PackageAvailability, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT p.product_id, p.id, p.name, p.price, p.archived, p.created_at, p.updated_at,
		       COUNT(c.id) FILTER (WHERE c.status='available')
		FROM packages p
		LEFT JOIN credentials c ON c.product_id=p.product_id AND c.package_id=p.id
		WHERE p.product_id=$1 AND NOT p.archived
		GROUP BY p.product_id, p.id
		ORDER BY p.price, p.id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PackageAvailability{}
	for rows.Next() {
		var a PackageAvailability
		p := &a.Package
		if err := rows.Scan(&p.Key.ProductID, &p.Key.PackageID, &p.Name, &p.Price, &p.Archived,
			&p.CreatedAt, &p.UpdatedAt, &a.Available); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) AddCredentials(ctx context.Context, key shop.PackageKey, secrets []string) (int, error) {
	clean := cleanSecrets(secrets)
	if len(clean) == 0 {
		return 0, fmt.Errorf("no secrets: %w", shop.ErrInvalidInput)
	}
	err := postgres.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := lockLivePackage(ctx, tx, key); err != nil {
			return err
		}
		// urutan insert = urutan id BIGSERIAL = urutan FIFO
		batch := &pgx.Batch{}
		for _, sec := range clean {
			batch.Queue(`INSERT INTO credentials(product_id, package_id, secret) VALUES ($1, $2, $3)`,
				key.ProductID, key.PackageID, sec)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, err
	}
	return len(clean), nil
}

// lockLivePackage takes a share lock on the package row so archiving waits
// for in-flight pool changes.
func lockLivePackage(ctx context.Context, tx pgx.Tx, key shop.PackageKey) error {
	var archived bool
	if err := tx.QueryRow(ctx, `
		SELECT archived FROM packages WHERE product_id=$1 AND id=$2 FOR SHARE`,
		key.ProductID, key.PackageID).Scan(&archived); err != nil {
		return mapPgErr(err, "package "+key.String())
	}
	if archived {
		return fmt.Errorf("package %s archived: %w", key, shop.ErrNotFound)
	}
	return nil
}

const credentialCols = `id, product_id, package_id, secret, status, COALESCE(holder_id, ''), COALESCE(sold_price, 0), created_at, reserved_at, delivered_at`

func scanCredential(row pgx.Row) (Credential, error) {
	var c Credential
	var status string
	err := row.Scan(&c.ID, &c.Package.ProductID, &c.Package.PackageID, &c.Secret, &status,
		&c.HolderID, &c.SoldPrice, &c.CreatedAt, &c.ReservedAt, &c.DeliveredAt)
	c.Status = CredentialStatus(status)
	return c, err
}

func (s *PGStore) ReserveCredential(ctx context.Context, key shop.PackageKey, holderID string) (Credential, error) {
	var c Credential
	err := postgres.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := lockLivePackage(ctx, tx, key); err != nil {
			return err
		}
		// SKIP LOCKED: baris yang sedang di-reserve tx lain dilewati, tidak menunggu (fail fast).
		var err error
		c, err = scanCredential(tx.QueryRow(ctx, `
			UPDATE credentials SET status='reserved', holder_id=$3, reserved_at=now(),
				sold_price=(SELECT price FROM packages WHERE product_id=$1 AND id=$2)
			WHERE id = (
				SELECT id FROM credentials
				WHERE product_id=$1 AND package_id=$2 AND status='available'
				ORDER BY id
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+credentialCols, key.ProductID, key.PackageID, holderID))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("package %s: %w", key, shop.ErrOutOfStock)
		}
		return err
	})
	if err != nil {
		return Credential{}, err
	}
	return c, nil
}

func (s *PGStore) ReleaseCredential(ctx context.Context, id int64, holderID string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE credentials SET status='available', holder_id=NULL, reserved_at=NULL, sold_price=NULL
		WHERE id=$1 AND status='reserved' AND holder_id=$2`, id, holderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// tidak ada yang berubah: cukup pastikan credential-nya memang ada
	_, err = s.GetCredential(ctx, id)
	return err
}

func (s *PGStore) DeliverCredential(ctx context.Context, id int64) (Credential, error) {
	c, err := scanCredential(s.DB.QueryRow(ctx, `
		UPDATE credentials SET status='delivered', delivered_at=now()
		WHERE id=$1 AND status='reserved'
		RETURNING `+credentialCols, id))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, err
	}
	cur, err := s.GetCredential(ctx, id)
	if err != nil {
		return Credential{}, err
	}
	return Credential{}, fmt.Errorf("credential %d is %s: %w", id, cur.Status, shop.ErrInvalidTransition)
}

func (s *PGStore) GetCredential(ctx context.Context, id int64) (Credential, error) {
	c, err := scanCredential(s.DB.QueryRow(ctx, `SELECT `+credentialCols+` FROM credentials WHERE id=$1`, id))
	if err != nil {
		return Credential{}, mapPgErr(err, fmt.Sprintf("credential %d", id))
	}
	return c, nil
}

func (s *PGStore) ListReserved(ctx context.Context, reservedBefore time.Time) ([]Credential, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+credentialCols+` FROM credentials
		WHERE status='reserved' AND reserved_at <= $1
		ORDER BY id`, reservedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) StockReport(ctx context.Context, productID string) (StockReport, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return StockReport{}, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT p.product_id, p.id, p.name, p.price, p.archived, p.created_at, p.updated_at,
		       COUNT(c.id) FILTER (WHERE c.status='available'),
		       COUNT(c.id) FILTER (WHERE c.status='reserved'),
		       COUNT(c.id) FILTER (WHERE c.status='delivered'),
		       COALESCE(SUM(c.sold_price) FILTER (WHERE c.status='delivered'), 0)
		FROM packages p
		LEFT JOIN credentials c ON c.product_id=p.product_id AND c.package_id=p.id
		WHERE p.product_id=$1
		GROUP BY p.product_id, p.id
		ORDER BY p.id`, productID)
	if err != nil {
		return StockReport{}, err
	}
	defer rows.Close()

	rep := StockReport{Product: p, Packages: []PackageStock{}}
	for rows.Next() {
		var ps PackageStock
		pk := &ps.Package
		if err := rows.Scan(&pk.Key.ProductID, &pk.Key.PackageID, &pk.Name, &pk.Price, &pk.Archived,
			&pk.CreatedAt, &pk.UpdatedAt, &ps.Available, &ps.Reserved, &ps.Delivered, &ps.Revenue); err != nil {
			return StockReport{}, err
		}
		rep.Packages = append(rep.Packages, ps)
	}
	return rep, rows.Err()
}
