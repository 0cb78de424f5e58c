// Package health adds methods for checking the health of service dependencies.
package health

import (
	"sort"

	"github.com/go-kit/log"
)

// Checker returns an error indicating if a service is in an unhealthy state.
// Checkers should be implemented by dependencies which can fail, like a DB.
type Checker interface {
	HealthCheck() error
}

// CheckHealth checks multiple checkers returning false if any of them fail.
// CheckHealth logs the reason a checker fails.
func CheckHealth(logger log.Logger, checkers map[string]Checker) bool {
	return len(Failing(logger, checkers)) == 0
}

// Failing runs every checker once and returns the sorted names of those that
// report an error. The reason of each failure is logged.
func Failing(logger log.Logger, checkers map[string]Checker) []string {
	var names []string
	for name, hc := range checkers {
		if err := hc.HealthCheck(); err != nil {
			log.With(logger, "component", "healthz").Log("err", err, "health-checker", name)
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Nop creates a noop checker. Useful in tests.
func Nop() Checker {
	return nop{}
}

type nop struct{}

func (c nop) HealthCheck() error {
	return nil
}
