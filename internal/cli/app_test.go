package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/cronthat/internal/clock"
	"github.com/t77yq/cronthat/internal/events"
	"github.com/t77yq/cronthat/internal/model"
	"github.com/t77yq/cronthat/internal/scheduler"
	"github.com/t77yq/cronthat/internal/storage"
	"github.com/t77yq/cronthat/internal/testutil"
)

var noon = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type testApp struct {
	*App
	out *bytes.Buffer
	err *bytes.Buffer
}

// newTestApp returns an App whose clock jumps straight to every occurrence
func newTestApp(t *testing.T, start time.Time) *testApp {
	t.Helper()
	app := NewApp()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app.In = strings.NewReader("")
	app.Out = out
	app.Err = errOut

	c := clock.Fake(start)
	c.SetAutoAdvance(true)
	app.Clock = c
	return &testApp{App: app, out: out, err: errOut}
}

func (a *testApp) run(args ...string) int {
	return a.Execute(context.Background(), append([]string{"--timezone", "UTC"}, args...))
}

func TestRunSchedule(t *testing.T) {
	t.Run("Runs The Command Each Occurrence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		app := newTestApp(t, noon)

		code := app.run("--repetitions", "2", "* * * * * *", "--", "echo helloworld >> "+path)
		require.Equal(t, ExitOK, code, app.err.String())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "helloworld\nhelloworld\n", string(content))

		assert.Equal(t, 2, strings.Count(app.out.String(), "-- Spawning command"))
		assert.Contains(t, app.out.String(), "2026-10-19 12:00:01.000000 +00:00 -- Spawning command")
		assert.Contains(t, app.out.String(), "2026-10-19 12:00:02.000000 +00:00 -- Spawning command")
	})

	t.Run("Words After The Expression Belong To The Command", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "letters.txt")
		require.NoError(t, os.WriteFile(file, []byte("a\nb\nc\nd\ne\n"), 0o644))

		app := newTestApp(t, noon)
		code := app.run("-u", "2026-10-19 12:00:10", "*/10 * * * * *", "head", "-n", "2", file)
		require.Equal(t, ExitOK, code, app.err.String())

		out := app.out.String()
		assert.Equal(t, 1, strings.Count(out, "-- Spawning command"))
		assert.Contains(t, out, "\na\nb\n")
		assert.NotContains(t, out, "\nc\n")
	})

	t.Run("Working Directory And Environment", func(t *testing.T) {
		dir := t.TempDir()
		app := newTestApp(t, noon)
		code := app.run("-n", "1", "--workdir", dir, "--env", "GREETING=hi", "--env", "EMPTY=",
			"* * * * * *", "echo \"$GREETING$EMPTY\" > greeting.txt")
		require.Equal(t, ExitOK, code, app.err.String())

		content, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hi\n", string(content))
	})

	t.Run("Command Output Is Inherited", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-n", "1", "*/30 * * * * *", "--", "echo", "to-stdout;", "echo", "to-stderr", ">&2")
		require.Equal(t, ExitOK, code, app.err.String())
		assert.Contains(t, app.out.String(), "to-stdout\n")
		assert.Contains(t, app.err.String(), "to-stderr\n")
	})

	t.Run("Warning Without Stop On Error", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-n", "2", "* * * * * *", "--", "false")
		assert.Equal(t, ExitOK, code)
		assert.Equal(t, 2, strings.Count(app.out.String(), "warning: command exited with non-zero status code"))
	})

	t.Run("Stop On Error", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-e", "* * * * * *", "--", "exit 3")
		assert.Equal(t, ExitFailure, code)
		assert.Equal(t, 1, strings.Count(app.out.String(), "-- Spawning command"))
		assert.NotContains(t, app.out.String(), "warning:")
		assert.Contains(t, app.err.String(), "error: command exited with non-zero status code")
	})

	t.Run("Run Immediately", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-i", "-n", "2", "0 0 12 * * *", "--", "true")
		assert.Equal(t, ExitOK, code)
		assert.Contains(t, app.out.String(), "2026-10-19 12:00:00.000000 +00:00 -- Spawning command")
		assert.Contains(t, app.out.String(), "2026-10-20 12:00:00.000000 +00:00 -- Spawning command")
	})

	t.Run("Until Already Passed", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-u", "2026-10-19 11:00:00", "* * * * * *", "--", "true")
		assert.Equal(t, ExitOK, code)
		assert.NotContains(t, app.out.String(), "Spawning command")
	})

	t.Run("Until Stops After The Last Occurrence", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-u", "2026-10-19 12:00:30", "*/10 * * * * *", "--", "true")
		assert.Equal(t, ExitOK, code)
		assert.Equal(t, 3, strings.Count(app.out.String(), "-- Spawning command"))
	})

	t.Run("Spawn Failure", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("--shell", "/nonexistent/shell", "-n", "1", "* * * * * *", "--", "true")
		assert.Equal(t, ExitFailure, code)
		assert.Contains(t, app.err.String(), "failed to spawn")
	})

	t.Run("Interrupted", func(t *testing.T) {
		app := newTestApp(t, noon)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		code := app.Execute(ctx, []string{"* * * * * *", "--", "true"})
		assert.Equal(t, ExitInterrupted, code)
		assert.NotContains(t, app.out.String(), "Spawning command")
	})

	t.Run("Schedule With No Occurrence", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("0 0 0 31 2 *", "--", "true")
		assert.Equal(t, ExitOK, code)
	})
}

func TestRunScheduleUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"No Command", []string{"* * * * * *"}, "no command given"},
		{"Invalid Expression", []string{"* * *", "--", "true"}, "invalid cron expression"},
		{"Out Of Range Field", []string{"0 0 25 * * *", "--", "true"}, "hour"},
		{"Zero Repetitions", []string{"-n", "0", "* * * * * *", "--", "true"}, "repetitions must be at least 1"},
		{"Bad Until", []string{"-u", "tomorrow", "* * * * * *", "--", "true"}, "invalid until timestamp"},
		{"Bad Timezone", []string{"--timezone", "Mars/Olympus", "* * * * * *", "--", "true"}, "invalid timezone"},
		{"Bad Environment Entry", []string{"--env", "NOVALUE", "* * * * * *", "--", "true"}, "invalid environment variable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, noon)
			code := app.Execute(context.Background(), tt.args)
			assert.Equal(t, ExitUsage, code)
			assert.Contains(t, app.err.String(), tt.wantErr)
		})
	}

	t.Run("Repetitions And Until", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("-n", "2", "-u", "2026-10-19 18:00:00", "* * * * * *", "--", "true")
		assert.NotEqual(t, ExitOK, code)
		assert.Contains(t, app.err.String(), "repetitions")
	})

	t.Run("Repetitions And Until From Environment", func(t *testing.T) {
		t.Setenv("CRONTHAT_UNTIL", "2026-10-19 18:00:00")
		app := newTestApp(t, noon)
		code := app.run("-n", "2", "* * * * * *", "--", "true")
		assert.Equal(t, ExitUsage, code)
		assert.Contains(t, app.err.String(), "mutually exclusive")
	})
}

func TestRunScheduleConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	cfgFile := filepath.Join(dir, "cronthat.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("repetitions: 3\ntimezone: UTC\n"), 0o644))

	app := newTestApp(t, noon)
	code := app.Execute(context.Background(), []string{"--config", cfgFile, "*/5 * * * * *", "--", "echo x >> " + path})
	require.Equal(t, ExitOK, code, app.err.String())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\nx\nx\n", string(content))
}

func TestRunScheduleHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")

	app := newTestApp(t, noon)
	code := app.run("--history-db", db, "--host-stats=false", "-n", "3", "*/10 * * * * *", "--", "exit 0")
	require.Equal(t, ExitOK, code, app.err.String())

	t.Run("List", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("history", "--history-db", db)
		require.Equal(t, ExitOK, code, app.err.String())

		out := app.out.String()
		assert.Contains(t, out, "SEQ")
		assert.Equal(t, 3, strings.Count(out, string(model.RunStatusSucceeded)))
		assert.Contains(t, out, "2026-10-19 12:00:10")
		assert.Contains(t, out, "3 of 3 runs")
	})

	t.Run("Filter And Limit", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("history", "--history-db", db, "--limit", "1", "--status", "succeeded")
		require.Equal(t, ExitOK, code, app.err.String())
		assert.Contains(t, app.out.String(), "1 of 3 runs")
		assert.Contains(t, app.out.String(), "2026-10-19 12:00:30")
	})

	t.Run("Show", func(t *testing.T) {
		history, err := storage.NewSQLiteRunHistory(zaptest.NewLogger(t), db)
		require.NoError(t, err)
		records, err := history.List(context.Background(), nil, 0, 1)
		require.NoError(t, err)
		require.NoError(t, history.Close())
		require.Len(t, records, 1)

		app := newTestApp(t, noon)
		code := app.run("history", "show", records[0].ID, "--history-db", db)
		require.Equal(t, ExitOK, code, app.err.String())

		out := app.out.String()
		assert.Contains(t, out, records[0].ID)
		assert.Contains(t, out, "*/10 * * * * *")
		assert.Contains(t, out, "exit 0")
		assert.Regexp(t, `Exit code:\s+0`, out)
		assert.Regexp(t, `Started:\s+2026-10-19 12:00:30`, out)
	})

	t.Run("Show Unknown Run", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("history", "show", "no-such-run", "--history-db", db)
		assert.Equal(t, ExitFailure, code)
		assert.Contains(t, app.err.String(), storage.ErrRecordNotFound.Error())
	})

	t.Run("Prune", func(t *testing.T) {
		app := newTestApp(t, noon.Add(2*time.Hour))
		code := app.run("history", "prune", "--history-db", db, "--older-than", "1h")
		require.Equal(t, ExitOK, code, app.err.String())
		assert.Contains(t, app.out.String(), "deleted 3 runs")
	})

	t.Run("No Database", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("history")
		assert.Equal(t, ExitUsage, code)
		assert.Contains(t, app.err.String(), ErrNoHistory.Error())
	})
}

func TestRunScheduleEvents(t *testing.T) {
	s, js := testutil.StartJetStream(t)

	app := newTestApp(t, noon)
	code := app.run("--nats-url", s.ClientURL(), "-n", "2", "* * * * * *", "--", "true")
	require.Equal(t, ExitOK, code, app.err.String())

	msgs, err := testutil.ConsumeMessages(js, events.SubjectPrefix+".*", time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	var types []model.RunEventType
	for _, data := range msgs {
		var event model.RunEvent
		require.NoError(t, json.Unmarshal(data, &event))
		types = append(types, event.Type)
	}
	assert.Equal(t, []model.RunEventType{
		model.RunEventStarted, model.RunEventFinished,
		model.RunEventStarted, model.RunEventFinished,
	}, types)
}

func TestNextCommand(t *testing.T) {
	t.Run("Upcoming Occurrences", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("next", "-c", "3", "*/15 * * * * *")
		require.Equal(t, ExitOK, code, app.err.String())

		assert.Equal(t, strings.Join([]string{
			"expression: 0,15,30,45 * * * * *",
			"2026-10-19 12:00:15 Mon UTC",
			"2026-10-19 12:00:30 Mon UTC",
			"2026-10-19 12:00:45 Mon UTC",
		}, "\n")+"\n", app.out.String())
	})

	t.Run("Unsatisfiable", func(t *testing.T) {
		app := newTestApp(t, noon)
		code := app.run("next", "0 0 0 30 2 *")
		require.Equal(t, ExitOK, code)
		assert.Contains(t, app.out.String(), "no upcoming occurrence")
	})

	t.Run("Invalid Count", func(t *testing.T) {
		app := newTestApp(t, noon)
		assert.Equal(t, ExitUsage, app.run("next", "-c", "0", "* * * * * *"))
	})

	t.Run("Invalid Expression", func(t *testing.T) {
		app := newTestApp(t, noon)
		assert.Equal(t, ExitUsage, app.run("next", "61 * * * * *"))
		assert.Contains(t, app.err.String(), "invalid cron expression")
	})
}

func TestVersionCommand(t *testing.T) {
	app := newTestApp(t, noon)
	require.Equal(t, ExitOK, app.run("version", "--short"))
	assert.Equal(t, BuildVersion+"\n", app.out.String())

	app = newTestApp(t, noon)
	require.Equal(t, ExitOK, app.run("version"))
	assert.Contains(t, app.out.String(), "cronthat "+BuildVersion)
	assert.Contains(t, app.out.String(), "Commit: ")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		report scheduler.Report
		want   int
	}{
		{"Exhausted", scheduler.Report{Outcome: scheduler.OutcomeExhausted}, ExitOK},
		{"Policy Stopped", scheduler.Report{Outcome: scheduler.OutcomePolicyStopped}, ExitOK},
		{"Stopped By Error", scheduler.Report{Outcome: scheduler.OutcomePolicyStopped, StoppedByError: true}, ExitFailure},
		{"Interrupted", scheduler.Report{Outcome: scheduler.OutcomeInterrupted}, ExitInterrupted},
		{"Spawn Failed", scheduler.Report{Outcome: scheduler.OutcomeSpawnFailed}, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.report))
		})
	}
}
