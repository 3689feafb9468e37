// Package all links every storage backend into the binary. Import it for
// side effects from main packages.
package all

import (
	_ "salesdw/internal/storage/csvdir"
	_ "salesdw/internal/storage/mssql"
	_ "salesdw/internal/storage/mysql"
	_ "salesdw/internal/storage/postgres"
	_ "salesdw/internal/storage/sqlite"
)
