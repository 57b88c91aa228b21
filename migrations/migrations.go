package migrations

import (
	"database/sql"
	"time"
)

// AutoMigrateCartMutations creates the cart_mutations table if it does not exist.
func AutoMigrateCartMutations(retries int, dbs ...*sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS cart_mutations (
			id VARCHAR(36) PRIMARY KEY,
			cart_id VARCHAR(64) NOT NULL,
			line_id VARCHAR(64) NOT NULL,
			kind VARCHAR(40) NOT NULL,
			payload TEXT NOT NULL,
			succeeded BOOLEAN NOT NULL,
			error TEXT NOT NULL,
			created_at DATETIME(3) NOT NULL,
			INDEX cart_mutations_cart_idx (cart_id, created_at)
		);
	`
	for _, db := range dbs {
		_, err := db.Exec(query)
		if err != nil {
			// Retry creating the table
			for i := 0; i < retries; i++ {
				time.Sleep(1 * time.Second)
				_, err = db.Exec(query)
				if err == nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
