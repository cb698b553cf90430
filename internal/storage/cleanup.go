package storage

import (
	"database/sql"
	"fmt"
)

// sampleTables lists every table that holds timestamped samples.
var sampleTables = []string{
	"cpu_accounting_samples",
	"cpu_freq_samples",
	"thermal_samples",
	"thermal_summaries",
}

// DeleteOlderThan removes samples taken before the given unix time from every
// table in one transaction and reports how many rows went.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	var total int64
	err := d.inTx(len(sampleTables), func(tx *sql.Tx) error {
		for _, table := range sampleTables {
			// Identifiers cannot be bound, table comes from sampleTables.
			res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), before)
			if err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
