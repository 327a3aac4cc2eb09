package routes

import "github.com/calamars-bot/calamars-go/internal/router"

// Default is the table used when no route file is configured. It answers
// health pings and otherwise leaves replies to the fallback.
func Default() router.Table {
	return router.Table{
		{Comparator: FoldEqual("ping"), Callback: router.Value("pong")},
	}
}
