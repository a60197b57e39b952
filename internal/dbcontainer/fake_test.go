package dbcontainer

import (
	"context"
	"sync"
)

type fakeInstance struct {
	mu           sync.Mutex
	endpoint     string
	endpointErr  error
	terminateErr error
	terminated   int
}

func (f *fakeInstance) Endpoint(context.Context) (string, error) {
	return f.endpoint, f.endpointErr
}

func (f *fakeInstance) Terminate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated++
	return f.terminateErr
}

func (f *fakeInstance) Terminated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

type fakeRuntime struct {
	inst  *fakeInstance
	err   error
	panic any
	calls int
	last  Request
}

func (f *fakeRuntime) RunPostgres(_ context.Context, req Request) (Instance, error) {
	f.calls++
	f.last = req
	if f.panic != nil {
		panic(f.panic)
	}
	if f.inst == nil {
		return nil, f.err
	}
	return f.inst, f.err
}
