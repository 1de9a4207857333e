package store

import (
	"context"
	"fmt"
	"time"
)

// RevokeToken records a token ID as revoked until it would have expired
// anyway. Revocations that are already past expiry are purged as a side
// effect.
func RevokeToken(ctx context.Context, q Querier, jti string, expiresAt, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UTC(),
	); err != nil {
		return fmt.Errorf("purging revoked tokens: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether jti has been revoked.
func IsTokenRevoked(ctx context.Context, q Querier, jti string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return n > 0, nil
}
