package store

import (
	"github.com/jackc/pgx/v5"
)

// mustParseConfig parses dsn into a pgx.ConnConfig for stdlib.OpenDB.
// dsn is built from validated credential-file fields (store.Config), so
// a parse failure here means the credential file itself is malformed;
// that is a startup configuration failure (spec §6 exit codes), not a
// runtime condition worth recovering from.
func mustParseConfig(dsn string) *pgx.ConnConfig {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		panic(err)
	}
	return cfg
}
