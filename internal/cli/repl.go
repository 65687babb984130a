package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App implements
// it; tests provide a lightweight stub.
type execIface interface {
	Backup(ctx context.Context) error
	List(ctx context.Context) error
	Restore(ctx context.Context, args []string) error
	Verify(ctx context.Context, args []string) error
	Share(ctx context.Context, args []string) error
	Fetch(ctx context.Context, args []string) error
	Prune(ctx context.Context) error
	Settings(ctx context.Context, args []string) error
	Queue(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	RotateKey(ctx context.Context) error
	Record(ctx context.Context, args []string) error
	Recent(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  backup                      create a backup now
  list                        list local and cloud backups
  restore <file>              restore a backup into the local cache
  verify <file>               check that a backup can be restored
  share <file>                export a backup to the share directory
  fetch <file>                download a cloud backup into the backup directory
  prune                       delete backups past retention
  settings [key=value ...]    show or change backup settings
                              (auto, encrypt, retention, max, schedule)
  record <entity> <json>      queue a change (production, revenue, expense, employee)
  recent <entity>             show recent changes for an entity
  queue                       show pending changes
  sync                        replay pending changes now
  status                      show connectivity
  rotate-key                  replace the encryption key
  exit | quit                 leave the program`

// runREPL reads commands line by line from scanner and dispatches them to a.
// The first token is the command, the rest are its arguments. The loop ends
// on EOF, on "exit"/"quit", or when ctx is cancelled.
//
// Errors returned by handlers are ignored here; handlers report them to the
// user themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("bk> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
		case "backup":
			_ = a.Backup(ctx)
		case "l", "list":
			_ = a.List(ctx)
		case "restore":
			_ = a.Restore(ctx, args)
		case "verify":
			_ = a.Verify(ctx, args)
		case "share":
			_ = a.Share(ctx, args)
		case "fetch":
			_ = a.Fetch(ctx, args)
		case "prune":
			_ = a.Prune(ctx)
		case "settings":
			_ = a.Settings(ctx, args)
		case "queue":
			_ = a.Queue(ctx)
		case "sync":
			_ = a.Sync(ctx)
		case "status":
			_ = a.Status(ctx)
		case "rotate-key":
			_ = a.RotateKey(ctx)
		case "record":
			// The payload may contain spaces; keep everything after the entity.
			_ = a.Record(ctx, splitRecordArgs(scanner.Text()))
		case "recent":
			_ = a.Recent(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

// splitRecordArgs turns "record <entity> <json...>" into [entity, json].
func splitRecordArgs(line string) []string {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "record"))
	if rest == "" {
		return nil
	}
	entity, payload, found := strings.Cut(rest, " ")
	if !found {
		return []string{entity}
	}
	return []string{entity, strings.TrimSpace(payload)}
}
