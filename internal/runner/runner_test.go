package runner_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/runner"
)

// testCommands are served by the test binary itself when it runs as a child.
var testCommands = runner.Commands{
	"ok": func(ctx context.Context, inv model.Invocation) error {
		fmt.Println("hello from child")
		return nil
	},
	"echo": func(ctx context.Context, inv model.Invocation) error {
		data, err := runner.Encode(inv)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
	"timeout": func(ctx context.Context, inv model.Invocation) error {
		return fmt.Errorf("remote call: %w", model.ErrConnectivityTimeout)
	},
	"rescheduled": func(ctx context.Context, inv model.Invocation) error {
		return fmt.Errorf("task: %w", errors.Join(model.ErrConnectivityTimeout, model.ErrTaskRescheduled))
	},
	"fail": func(ctx context.Context, inv model.Invocation) error {
		return errors.New("something went wrong")
	},
	"bigline": func(ctx context.Context, inv model.Invocation) error {
		fmt.Println(strings.Repeat("x", 2*1024*1024))
		fmt.Println("after the long line")
		return nil
	},
	"sleep": func(ctx context.Context, inv model.Invocation) error {
		time.Sleep(10 * time.Second)
		return nil
	},
}

func TestMain(m *testing.M) {
	if runner.IsChild() {
		os.Exit(runner.ServeChild(context.Background(), os.Stdin, os.Stderr, testCommands, log.Noop))
	}
	os.Exit(m.Run())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := map[string]struct {
		inv model.Invocation
		exp string
	}{
		"Positional and assoc arguments": {
			inv: model.Invocation{Name: "x", Arguments: []any{1, 2}, AssocArguments: map[string]any{"a": "b"}},
			exp: `{"name":"x","arguments":[1,2],"assoc_arguments":{"a":"b"}}`,
		},
		"Empty arguments are normalized": {
			inv: model.Invocation{Name: "x"},
			exp: `{"name":"x","arguments":[],"assoc_arguments":{}}`,
		},
		"JSON safe scalars and arrays": {
			inv: model.Invocation{
				Name:           "import-products::0",
				Arguments:      []any{1.5, -3, "s", true, nil, []any{1, "2"}},
				AssocArguments: map[string]any{"big": int64(9007199254740993), "f": 0.1, "l": []any{}},
			},
			exp: `{"name":"import-products::0","arguments":[1.5,-3,"s",true,null,[1,"2"]],"assoc_arguments":{"big":9007199254740993,"f":0.1,"l":[]}}`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := runner.Encode(test.inv)
			require.NoError(t, err)
			assert.JSONEq(t, test.exp, string(data))

			decoded, err := runner.DecodeBytes(data)
			require.NoError(t, err)

			again, err := runner.Encode(decoded)
			require.NoError(t, err)
			assert.Equal(t, string(data), string(again))
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := map[string]string{
		"Not JSON":     `nope`,
		"Missing name": `{"arguments":[]}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runner.DecodeBytes([]byte(payload))
			assert.ErrorIs(t, err, model.ErrNotValid)
		})
	}
}

func TestInProcessRunner(t *testing.T) {
	r, err := runner.NewInProcessRunner(runner.InProcessRunnerConfig{Commands: testCommands})
	require.NoError(t, err)

	code, err := r.Run(context.Background(), model.Invocation{Name: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = r.Run(context.Background(), model.Invocation{Name: "timeout"})
	assert.ErrorIs(t, err, model.ErrConnectivityTimeout)
	assert.Equal(t, 1, code)

	_, err = r.Run(context.Background(), model.Invocation{Name: "missing"})
	assert.ErrorIs(t, err, model.ErrUnknownTaskType)
}

func newIsolatedRunner(t *testing.T, cfg runner.IsolatedRunnerConfig) *runner.IsolatedRunner {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	cfg.Executable = exe
	cfg.Args = []string{"-test.run=^$"}
	r, err := runner.NewIsolatedRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestIsolatedRunner(t *testing.T) {
	tests := map[string]struct {
		inv         model.Invocation
		timeout     time.Duration
		expCode     int
		expOut      string
		expErrKinds []error
		expNotKinds []error
		expErr      bool
	}{
		"A successful child returns 0": {
			inv:     model.Invocation{Name: "ok"},
			expCode: 0,
			expOut:  "hello from child\n",
		},
		"The payload reaches the child losslessly": {
			inv:     model.Invocation{Name: "echo", Arguments: []any{1, 2}, AssocArguments: map[string]any{"a": "b"}},
			expCode: 0,
			expOut:  `{"name":"echo","arguments":[1,2],"assoc_arguments":{"a":"b"}}` + "\n",
		},
		"A timeout is reclassified from the child stderr": {
			inv:         model.Invocation{Name: "timeout"},
			expCode:     1,
			expErr:      true,
			expErrKinds: []error{model.ErrConnectivityTimeout},
			expNotKinds: []error{model.ErrTaskRescheduled},
		},
		"A handled timeout is reclassified as rescheduled": {
			inv:         model.Invocation{Name: "rescheduled"},
			expCode:     1,
			expErr:      true,
			expErrKinds: []error{model.ErrConnectivityTimeout, model.ErrTaskRescheduled},
		},
		"A generic failure has no known kind": {
			inv:         model.Invocation{Name: "fail"},
			expCode:     1,
			expErr:      true,
			expNotKinds: []error{model.ErrConnectivityTimeout, model.ErrLockActive},
		},
		"An unknown command fails": {
			inv:         model.Invocation{Name: "missing"},
			expCode:     2,
			expErr:      true,
			expErrKinds: []error{model.ErrUnknownTaskType},
		},
		"A child over the timeout is killed": {
			inv:     model.Invocation{Name: "sleep"},
			timeout: 200 * time.Millisecond,
			expCode: -1,
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			r := newIsolatedRunner(t, runner.IsolatedRunnerConfig{Timeout: test.timeout, EchoOutput: &out})

			code, err := r.Run(context.Background(), test.inv)
			assert.Equal(t, test.expCode, code)

			if !test.expErr {
				require.NoError(t, err)
				assert.Equal(t, test.expOut, out.String())
				return
			}

			var failure *runner.SubProcessFailure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, test.expCode, failure.ExitCode)
			for _, k := range test.expErrKinds {
				assert.ErrorIs(t, err, k)
			}
			for _, k := range test.expNotKinds {
				assert.NotErrorIs(t, err, k)
			}
		})
	}
}

func TestIsolatedRunnerOverlongOutputLine(t *testing.T) {
	var out bytes.Buffer
	r := newIsolatedRunner(t, runner.IsolatedRunnerConfig{EchoOutput: &out})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code, err := r.Run(ctx, model.Invocation{Name: "bigline"})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " [truncated]"))
	assert.Less(t, len(lines[0]), 2*1024*1024)
	assert.Equal(t, "after the long line", lines[1])
}

func TestSubProcessFailure(t *testing.T) {
	f := &runner.SubProcessFailure{
		Invocation: "import-products::0",
		ExitCode:   1,
		Stderr:     "level=info msg=\"starting\"\n" + runner.FormatFailure(fmt.Errorf("x: %w", model.ErrLockActive)) + "\n",
	}

	assert.ErrorIs(t, f, model.ErrLockActive)
	assert.True(t, model.IsLockError(f))
	assert.Equal(t, []string{"LockActive"}, f.Kinds())
	assert.True(t, strings.HasSuffix(f.Error(), "[kind=LockActive] x: lock active"))
}
