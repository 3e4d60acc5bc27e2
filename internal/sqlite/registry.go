package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/loomworks/tapestry/pkg/euid"
	"github.com/loomworks/tapestry/pkg/types"
)

// ProvisionPrefix creates the counter row for an identifier prefix if it
// does not exist, and raises its value to floor so previously issued
// identifiers are never reused. Counters only move forward.
func (t *Tx) ProvisionPrefix(prefix string, floor int64) error {
	p, err := euid.NormalizePrefix(prefix)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(`INSERT OR IGNORE INTO euid_counters (prefix, value) VALUES (?, 0)`, p); err != nil {
		return fmt.Errorf("provisioning prefix %s: %w", p, err)
	}
	if floor > 0 {
		if _, err := t.tx.Exec(`UPDATE euid_counters SET value = MAX(value, ?) WHERE prefix = ?`, floor, p); err != nil {
			return fmt.Errorf("raising counter for prefix %s: %w", p, err)
		}
	}
	return nil
}

// NextEUID allocates the next counter value for a prefix via an atomic
// in-database increment and formats the identifier. A missing counter is a
// configuration error, never a silent fallback: collisions under a defaulted
// counter would break global uniqueness.
func (t *Tx) NextEUID(prefix string) (string, error) {
	p, err := euid.NormalizePrefix(prefix)
	if err != nil {
		return "", err
	}

	var value int64
	err = t.tx.QueryRow(
		`UPDATE euid_counters SET value = value + 1 WHERE prefix = ? RETURNING value`, p,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", types.ErrIdentifierIntegrity, p)
	}
	if err != nil {
		return "", fmt.Errorf("allocating counter for prefix %s: %w", p, err)
	}

	if sandbox := t.store.cfg.SandboxPrefix; sandbox != "" {
		return euid.FormatSandbox(sandbox, p, value)
	}
	return euid.Format(p, value)
}

// provisionFloorFromInstances computes the counter floor for a prefix from
// identifiers already present in the instances table, so seeding against an
// existing database resumes numbering after the highest issued value.
func (t *Tx) provisionFloorFromInstances(prefix string) (int64, error) {
	rows, err := t.tx.Query(`SELECT euid FROM instances WHERE euid LIKE ?`, prefix+euid.Delimiter+"%")
	if err != nil {
		return 0, fmt.Errorf("scanning instance identifiers for %s: %w", prefix, err)
	}
	defer rows.Close()

	var floor int64
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if sandbox, rest, ok := euid.SplitSandbox(id); ok && sandbox != "" {
			id = rest
		}
		p, counter, err := euid.Parse(id)
		if err != nil || p != prefix {
			continue
		}
		if counter > floor {
			floor = counter
		}
	}
	return floor, rows.Err()
}

// CounterValue returns the current counter value for a prefix, or
// ErrIdentifierIntegrity if the prefix is not provisioned.
func (t *Tx) CounterValue(prefix string) (int64, error) {
	p := strings.TrimSpace(strings.ToUpper(prefix))
	var value int64
	err := t.tx.QueryRow(`SELECT value FROM euid_counters WHERE prefix = ?`, p).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", types.ErrIdentifierIntegrity, p)
	}
	return value, err
}
