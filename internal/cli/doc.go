// Package cli provides the interactive bizkeeper command line.
//
// The REPL works against the services built in package app: it records
// business changes into the offline queue, shows queue and connectivity
// state, and drives backups (create, list, verify, restore, share, prune)
// and their settings. Connectivity and scheduled backups run in the
// background while the REPL is open.
//
// Start it with App.Run, which blocks until the user exits or the context
// is cancelled.
package cli
