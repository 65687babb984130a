package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	calls []string
	args  map[string][]string
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = map[string][]string{}
	}
	f.args[name] = args
	return nil
}

func (f *fakeExec) Backup(context.Context) error { return f.record("backup", nil) }
func (f *fakeExec) List(context.Context) error   { return f.record("list", nil) }
func (f *fakeExec) Restore(_ context.Context, args []string) error {
	return f.record("restore", args)
}
func (f *fakeExec) Verify(_ context.Context, args []string) error { return f.record("verify", args) }
func (f *fakeExec) Share(_ context.Context, args []string) error  { return f.record("share", args) }
func (f *fakeExec) Fetch(_ context.Context, args []string) error  { return f.record("fetch", args) }
func (f *fakeExec) Prune(context.Context) error                   { return f.record("prune", nil) }
func (f *fakeExec) Settings(_ context.Context, args []string) error {
	return f.record("settings", args)
}
func (f *fakeExec) Queue(context.Context) error     { return f.record("queue", nil) }
func (f *fakeExec) Sync(context.Context) error      { return f.record("sync", nil) }
func (f *fakeExec) Status(context.Context) error    { return f.record("status", nil) }
func (f *fakeExec) RotateKey(context.Context) error { return f.record("rotate-key", nil) }
func (f *fakeExec) Record(_ context.Context, args []string) error {
	return f.record("record", args)
}
func (f *fakeExec) Recent(_ context.Context, args []string) error { return f.record("recent", args) }

func silence(t *testing.T) *[]string {
	t.Helper()
	var out []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		out = append(out, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &out
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	silence(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"",
		"backup",
		"l",
		"restore backup_1.json",
		"verify backup_1.json",
		"share backup_1.json",
		"fetch backup_2.json",
		"prune",
		"settings auto=false max=3",
		`record revenue {"amount": 10, "note": "cash sale"}`,
		"recent revenue",
		"queue",
		"sync",
		"status",
		"rotate-key",
		"foobar",
		"exit",
		"backup",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "offline" }, bufio.NewScanner(input))

	assert.Equal(t, []string{
		"backup", "list", "restore", "verify", "share", "fetch", "prune", "settings",
		"record", "recent", "queue", "sync", "status", "rotate-key",
	}, exec.calls)
	assert.Equal(t, []string{"backup_1.json"}, exec.args["restore"])
	assert.Equal(t, []string{"auto=false", "max=3"}, exec.args["settings"])
	assert.Equal(t, []string{"backup_2.json"}, exec.args["fetch"])
	assert.Equal(t, []string{"revenue", `{"amount": 10, "note": "cash sale"}`}, exec.args["record"])
}

func TestRunREPL_QuitAndEOF(t *testing.T) {
	out := silence(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("quit\nbackup\n")))
	assert.Empty(t, exec.calls)
	assert.Contains(t, *out, "Bye!")

	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("")))
	assert.Empty(t, exec.calls)
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	silence(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{}
	runREPL(ctx, exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("backup\n")))
	require.Empty(t, exec.calls)
}

func TestSplitRecordArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{line: "record", want: nil},
		{line: "record   ", want: nil},
		{line: "record revenue", want: []string{"revenue"}},
		{line: `  record expense   {"a": 1}  `, want: []string{"expense", `{"a": 1}`}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitRecordArgs(tt.line), tt.line)
	}
}

func TestAppRun_ReturnsOnExit(t *testing.T) {
	silence(t)
	a, _, _, _ := newTestApp()
	a.in = strings.NewReader("status\nexit\n")

	require.NoError(t, a.Run(context.Background()))
}
