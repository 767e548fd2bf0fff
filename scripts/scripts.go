// Package scripts embeds the Risor generator scripts shipped with ripple.
// Scripts live under generate/ and are named after the generator key they
// serve, with "/" written as "_" (sql/sqlite → generate/sql_sqlite.risor).
package scripts

import "embed"

//go:embed generate
var FS embed.FS
