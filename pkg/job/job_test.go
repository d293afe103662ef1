package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetPayload struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

type greetTask struct {
	got []greetPayload
	err error
}

func (t *greetTask) Name() string { return "greet" }

func (t *greetTask) Handle(_ context.Context, p greetPayload) error {
	t.got = append(t.got, p)
	return t.err
}

type sweepTask struct {
	runs int
}

func (t *sweepTask) Name() string     { return "sweep" }
func (t *sweepTask) Schedule() string { return "0 3 * * *" }
func (t *sweepTask) Handle(context.Context) error {
	t.runs++
	return nil
}

func TestNewManager_NilPool(t *testing.T) {
	_, err := NewManager(nil)
	assert.ErrorIs(t, err, ErrPoolRequired)
}

func TestParseCronSchedule(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := parseCronSchedule("0 * * * *")
		require.NoError(t, err)

		base := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), s.Next(base))
	})

	for _, expr := range []string{"", "* * *", "* * * * * *", "60 * * * *", "* * * 13 *", "garbage"} {
		t.Run("invalid "+expr, func(t *testing.T) {
			_, err := parseCronSchedule(expr)
			assert.Error(t, err)
		})
	}
}

func TestBuildJobArgs(t *testing.T) {
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	args, opts, err := buildJobArgs("greet", greetPayload{Email: "a@b.nl"},
		InQueue("mail"), MaxAttempts(5), ScheduledAt(at), UniqueFor(time.Minute), UniqueKey("a@b.nl"), Tags("auth"))
	require.NoError(t, err)

	assert.Equal(t, "fdm:task", args.Kind())
	assert.Equal(t, "greet", args.TaskName)
	assert.Equal(t, "a@b.nl", args.UniqueKey)
	assert.JSONEq(t, `{"email":"a@b.nl","count":0}`, string(args.Payload))
	assert.Equal(t, "mail", opts.Queue)
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.Equal(t, at, opts.ScheduledAt)
	assert.Equal(t, time.Minute, opts.UniqueOpts.ByPeriod)
	assert.Equal(t, []string{"auth"}, opts.Tags)

	_, _, err = buildJobArgs("greet", make(chan int))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestTypedExecutor(t *testing.T) {
	task := &greetTask{}
	exec := typedExecutor[greetPayload]{task: task}

	require.NoError(t, exec.Execute(context.Background(), []byte(`{"email":"x@y.nl","count":2}`)))
	require.NoError(t, exec.Execute(context.Background(), nil))
	assert.Equal(t, []greetPayload{{Email: "x@y.nl", Count: 2}, {}}, task.got)

	err := exec.Execute(context.Background(), []byte(`{"count":"two"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestInline(t *testing.T) {
	ctx := context.Background()
	greet := &greetTask{}
	sweep := &sweepTask{}
	in := NewInline(WithTask[greetPayload](greet), WithScheduledTask(sweep))

	require.NoError(t, in.Enqueue(ctx, "greet", greetPayload{Email: "boer@example.nl"}))
	require.NoError(t, in.Run(ctx, "sweep"))
	require.NoError(t, in.Enqueue(ctx, "greet", greetPayload{}, ScheduledIn(time.Hour)))

	assert.Equal(t, []string{"greet", "sweep"}, in.Executed())
	assert.Equal(t, []string{"greet"}, in.Deferred())
	assert.Len(t, greet.got, 1)
	assert.Equal(t, 1, sweep.runs)

	err := in.Enqueue(ctx, "unknown", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)

	greet.err = errors.New("smtp down")
	assert.EqualError(t, in.Enqueue(ctx, "greet", greetPayload{}), "smtp down")
}

func TestRegistryNamesSorted(t *testing.T) {
	cfg := newConfig()
	WithScheduledTask(&sweepTask{})(cfg)
	WithTask[greetPayload](&greetTask{})(cfg)

	assert.Equal(t, []string{"greet", "sweep"}, cfg.registry.names())
	require.Len(t, cfg.schedules, 1)
	assert.Equal(t, "0 3 * * *", cfg.schedules[0].expr)
}
