// Package migrations embeds the Store's schema so the binary carries it —
// no separate migrations directory needs to ship alongside the compiled
// server, matching the embed.FS + golang-migrate iofs source pairing
// banshee-data's velocity.report uses for its own sqlite store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
