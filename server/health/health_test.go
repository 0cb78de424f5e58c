package health

import (
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestCheckHealth(t *testing.T) {
	checkers := map[string]Checker{
		"fail": fail{},
		"pass": Nop(),
	}

	healthy := CheckHealth(log.NewNopLogger(), checkers)
	require.False(t, healthy)
	require.Equal(t, []string{"fail"}, Failing(log.NewNopLogger(), checkers))

	checkers = map[string]Checker{
		"pass": Nop(),
	}
	healthy = CheckHealth(log.NewNopLogger(), checkers)
	require.True(t, healthy)
	require.Empty(t, Failing(log.NewNopLogger(), checkers))
}

func TestFailingChecksOnce(t *testing.T) {
	a, b := &counting{err: errors.New("down")}, &counting{}
	checkers := map[string]Checker{"b": b, "a": a, "nop": Nop()}

	require.Equal(t, []string{"a"}, Failing(log.NewNopLogger(), checkers))
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
}

type counting struct {
	calls int
	err   error
}

func (c *counting) HealthCheck() error {
	c.calls++
	return c.err
}

type fail struct{}

func (c fail) HealthCheck() error {
	return errors.New("fail")
}
