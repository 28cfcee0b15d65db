package contentstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// PostgresStore implements Store on top of the "Persisted state layout
// (node)" of section 6: one transactional store holding two logical
// tables, blobs (address -> bytes) and references (address -> referrer
// multiset), grounded on the connect/migrate/pool pattern of
// internal/vectorstore/pgvector.go.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and ensures the blobs/references
// tables exist.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("contentstore connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("contentstore ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("contentstore migrate: %w", err)
	}
	log.Info().Msg("cathedral content store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS cath_blobs (
			address TEXT PRIMARY KEY,
			data    BYTEA NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cath_references (
			address  TEXT NOT NULL,
			referrer TEXT NOT NULL,
			count    INT NOT NULL DEFAULT 1,
			PRIMARY KEY (address, referrer)
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, data []byte) (core.ContentAddress, error) {
	addr := core.AddressFromData(data)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cath_blobs (address, data) VALUES ($1, $2) ON CONFLICT (address) DO NOTHING`,
		addr.String(), data)
	if err != nil {
		return core.ContentAddress{}, core.NewError(core.CodeStorageError, err.Error())
	}
	return addr, nil
}

func (s *PostgresStore) Get(ctx context.Context, addr core.ContentAddress) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM cath_blobs WHERE address = $1`, addr.String()).Scan(&data)
	if err != nil {
		return nil, core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	return data, nil
}

func (s *PostgresStore) Contains(ctx context.Context, addr core.ContentAddress) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cath_blobs WHERE address = $1)`, addr.String()).Scan(&exists)
	if err != nil {
		return false, core.NewError(core.CodeStorageError, err.Error())
	}
	return exists, nil
}

func (s *PostgresStore) Size(ctx context.Context, addr core.ContentAddress) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx, `SELECT LENGTH(data) FROM cath_blobs WHERE address = $1`, addr.String()).Scan(&size)
	if err != nil {
		return 0, core.NewError(core.CodeNotFound, "blob not found: "+addr.String())
	}
	return size, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]core.ContentAddress, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM cath_blobs`)
	if err != nil {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}
	defer rows.Close()

	var out []core.ContentAddress
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, core.NewError(core.CodeStorageError, err.Error())
		}
		addr, err := core.ParseContentAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, addr core.ContentAddress) error {
	count, err := s.RefCount(ctx, addr)
	if err != nil {
		return err
	}
	if count > 0 {
		return core.NewError(core.CodeStillReferenced, "blob still referenced: "+addr.String())
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM cath_blobs WHERE address = $1`, addr.String())
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

func (s *PostgresStore) AddRef(ctx context.Context, addr core.ContentAddress, referrer string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cath_references (address, referrer, count) VALUES ($1, $2, 1)
		ON CONFLICT (address, referrer) DO UPDATE SET count = cath_references.count + 1`,
		addr.String(), referrer)
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

func (s *PostgresStore) RemoveRef(ctx context.Context, addr core.ContentAddress, referrer string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cath_references SET count = count - 1 WHERE address = $1 AND referrer = $2`,
		addr.String(), referrer)
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM cath_references WHERE address = $1 AND referrer = $2 AND count <= 0`,
		addr.String(), referrer)
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

func (s *PostgresStore) RefCount(ctx context.Context, addr core.ContentAddress) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM cath_references WHERE address = $1`, addr.String()).Scan(&total)
	if err != nil {
		return 0, core.NewError(core.CodeStorageError, err.Error())
	}
	return total, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
