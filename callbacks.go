package telegraph

// SaveResult is returned by the application's save callback.
type SaveResult struct {
	State    any
	Checksum string
}

// Callbacks connect a session to the application's simulation.
//
// SaveState and LoadState must be exact inverses and depend on simulation
// state only. AdvanceFrame must run exactly one tick: fetch inputs with
// SyncInput, step the simulation, then call IncrementFrame. It is invoked
// by the session during rollback to replay frames.
type Callbacks struct {
	SaveState    func() SaveResult
	LoadState    func(state any)
	AdvanceFrame func()
	OnEvent      func(Event)
}

func (c *Callbacks) emit(ev Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}
