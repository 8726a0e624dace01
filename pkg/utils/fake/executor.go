package fake

import (
	"context"
	"strings"
	"sync"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

// Handler answers a command line that has no canned response. Returning a
// nil result means "not handled".
type Handler func(cmdline string) (*utils.Result, error)

// Executor records every command and replays canned results.
type Executor struct {
	lock      sync.Mutex
	commands  []string
	responses map[string]*utils.Result
	handler   Handler
}

func NewExecutor() *Executor {
	return &Executor{
		responses: make(map[string]*utils.Result),
	}
}

// SetResponse registers the result returned for an exact command line.
func (e *Executor) SetResponse(cmdline string, result *utils.Result) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.responses[cmdline] = result
}

// SetHandler installs a fallback for command lines without a response.
func (e *Executor) SetHandler(handler Handler) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.handler = handler
}

func (e *Executor) Run(_ context.Context, name string, args ...string) (*utils.Result, error) {
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))

	e.lock.Lock()
	e.commands = append(e.commands, cmdline)
	result, found := e.responses[cmdline]
	handler := e.handler
	e.lock.Unlock()

	if found {
		copied := *result
		return &copied, nil
	}
	if handler != nil {
		result, err := handler(cmdline)
		if err != nil || result != nil {
			return result, err
		}
	}
	return &utils.Result{}, nil
}

// Commands returns the command lines executed so far.
func (e *Executor) Commands() []string {
	e.lock.Lock()
	defer e.lock.Unlock()

	return append([]string(nil), e.commands...)
}

// Count returns how many executed command lines start with prefix.
func (e *Executor) Count(prefix string) int {
	count := 0
	for _, cmd := range e.Commands() {
		if strings.HasPrefix(cmd, prefix) {
			count++
		}
	}
	return count
}

func (e *Executor) Reset() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.commands = nil
}
