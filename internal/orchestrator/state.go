package orchestrator

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/lanwave/radio/pkg/types"
)

// statePersister owns the throttled, atomic write of .musicapp_state.json
// (§6): at most once per second while playing, always on an explicit save
// (pause, an explicit track pick, or shutdown).
type statePersister struct {
	path string

	mu       sync.Mutex
	lastSave time.Time
}

func newStatePersister(path string) *statePersister {
	return &statePersister{path: path}
}

func (p *statePersister) load() (types.PersistedState, bool) {
	if p.path == "" {
		return types.PersistedState{}, false
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return types.PersistedState{}, false
	}
	var s types.PersistedState
	if err := json.Unmarshal(data, &s); err != nil {
		return types.PersistedState{}, false
	}
	if s.Path == "" {
		return types.PersistedState{}, false
	}
	if _, err := os.Stat(s.Path); err != nil {
		return types.PersistedState{}, false
	}
	return s, true
}

// saveThrottled writes s only if at least one second has elapsed since the
// last write.
func (p *statePersister) saveThrottled(s types.PersistedState) {
	p.mu.Lock()
	if time.Since(p.lastSave) < time.Second {
		p.mu.Unlock()
		return
	}
	p.lastSave = time.Now()
	p.mu.Unlock()
	p.write(s)
}

// saveAlways writes s unconditionally, bypassing the throttle.
func (p *statePersister) saveAlways(s types.PersistedState) {
	p.mu.Lock()
	p.lastSave = time.Now()
	p.mu.Unlock()
	p.write(s)
}

func (p *statePersister) write(s types.PersistedState) {
	if p.path == "" || s.Path == "" {
		return
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, p.path)
}

func (o *Orchestrator) snapshotPersisted() types.PersistedState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Current == nil {
		return types.PersistedState{}
	}
	return types.PersistedState{
		Path:    o.state.Current.Path,
		Elapsed: o.state.Elapsed.Seconds(),
		Paused:  o.state.Paused,
		Repeat:  o.state.Repeat,
	}
}
