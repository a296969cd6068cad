// Package all registers every warehouse backend. Commands import it for the
// side effect.
package all

import (
	_ "sqlparquet/internal/warehouse/mssql"
	_ "sqlparquet/internal/warehouse/postgres"
	_ "sqlparquet/internal/warehouse/sqlite"
)
