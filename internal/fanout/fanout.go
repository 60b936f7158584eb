// Package fanout broadcasts every applied command to a dynamic set of
// update sinks (spec §4.5): byte streams, typed channels, and callbacks.
// A sink that fails delivery once is removed; every surviving sink sees
// commands in the exact order the engine applied them.
package fanout

import (
	"sync"

	"github.com/austinkregel/local-media/musicdbd/internal/command"
)

// Fanout owns the registered sink set. The server frontend registers a
// new connection's ByteSink under the same lock that took the bootstrap
// snapshot (spec §4.8), so no command can be missed or duplicated.
type Fanout struct {
	mu    sync.Mutex
	next  int
	sinks map[int]Sink
}

// New returns an empty Fanout.
func New() *Fanout {
	return &Fanout{sinks: make(map[int]Sink)}
}

// Register adds sink and returns a handle for Unregister.
func (f *Fanout) Register(sink Sink) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.sinks[id] = sink
	return id
}

// Unregister removes the sink added under handle, if still present.
func (f *Fanout) Unregister(handle int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, handle)
}

// Count reports how many sinks are currently registered.
func (f *Fanout) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// Broadcast delivers cmd to every registered sink, removing any that fail.
func (f *Fanout) Broadcast(cmd *command.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var dead []int
	for id, sink := range f.sinks {
		if err := sink.deliver(cmd); err != nil {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}
	for _, id := range dead {
		delete(f.sinks, id)
	}
	log.WithFields(map[string]interface{}{
		"removed":   len(dead),
		"remaining": len(f.sinks),
	}).Info("removed failed sinks")
}
