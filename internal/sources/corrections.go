package sources

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/lookup"
)

// Corrections is the highest-authority adapter: ground-truth overrides
// entered by a human reviewer, keyed first by exact normalized address and
// falling back to ZIP. Backed by SQLite so corrections survive restarts and
// can be appended without redeploying reference data.
type Corrections struct {
	db *sql.DB
}

const correctionsSchema = `
CREATE TABLE IF NOT EXISTS address_corrections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	address_key TEXT NOT NULL,
	utility_type TEXT NOT NULL,
	provider_name TEXT NOT NULL,
	catalog_id INTEGER,
	created_at DATETIME NOT NULL,
	UNIQUE(address_key, utility_type)
);

CREATE TABLE IF NOT EXISTS zip_corrections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zip TEXT NOT NULL,
	utility_type TEXT NOT NULL,
	provider_name TEXT NOT NULL,
	catalog_id INTEGER,
	created_at DATETIME NOT NULL,
	UNIQUE(zip, utility_type)
);
`

// NewCorrections opens (creating if necessary) the corrections tables on an
// already-opened SQLite handle.
func NewCorrections(db *sql.DB) (*Corrections, error) {
	if _, err := db.Exec(correctionsSchema); err != nil {
		return nil, eris.Wrap(err, "sources: create corrections schema")
	}
	return &Corrections{db: db}, nil
}

// ByAddress looks up an exact-address override. Confidence 0.99, the
// highest of any source — a human explicitly verified this address.
func (c *Corrections) ByAddress(ctx context.Context, rawAddress string, ut lookup.UtilityType) (*Candidate, error) {
	var name string
	err := c.db.QueryRowContext(ctx,
		`SELECT provider_name FROM address_corrections WHERE address_key = ? AND utility_type = ?`,
		normalizeAddressKey(rawAddress), string(ut),
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sources: query address correction")
	}
	return &Candidate{Name: name, PolygonSource: "correction_address", Confidence: 0.99}, nil
}

// ByZip looks up a ZIP-level override. Confidence 0.98, one notch below an
// exact-address hit.
func (c *Corrections) ByZip(ctx context.Context, zip string, ut lookup.UtilityType) (*Candidate, error) {
	var name string
	err := c.db.QueryRowContext(ctx,
		`SELECT provider_name FROM zip_corrections WHERE zip = ? AND utility_type = ?`,
		normalizeZip5(zip), string(ut),
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sources: query zip correction")
	}
	return &Candidate{Name: name, PolygonSource: "correction_zip", Confidence: 0.98}, nil
}

// AddAddressCorrection records a new address-level override, used by the
// batch validator's review workflow to promote a confirmed mismatch into a
// permanent correction.
func (c *Corrections) AddAddressCorrection(ctx context.Context, rawAddress string, ut lookup.UtilityType, providerName string, catalogID int) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO address_corrections (address_key, utility_type, provider_name, catalog_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(address_key, utility_type) DO UPDATE SET
			provider_name = excluded.provider_name, catalog_id = excluded.catalog_id, created_at = excluded.created_at`,
		normalizeAddressKey(rawAddress), string(ut), providerName, catalogID, time.Now().UTC(),
	)
	return eris.Wrap(err, "sources: add address correction")
}
