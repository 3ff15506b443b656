package poll

import (
	"sync"

	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/logging"
	"github.com/tjamet/go-pollsched/internal/readiness"
	"github.com/tjamet/go-pollsched/internal/types"
)

// Register implements spec.md §4.2. Programmer-error conditions (unsupported
// type, READ and WRITE both set, class-set missing the universal class,
// conflicting reader/writer) go through the panic hook per spec.md §7 and
// never return; resource exhaustion (a full per-class slot table) is
// reported as StatusInsufficientResources with state rolled back.
func (p *PollBackend) Register(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType, info int64, lock sync.Locker) (types.Status, error) {
	if fn == nil {
		logging.PanicHook("pollbackend: Register called with a nil function")
		return types.StatusError, nil
	}
	if !classSet.HasUniversal() {
		logging.PanicHook("pollbackend: class set %s is missing the universal class", classSet)
		return types.StatusError, nil
	}
	if flags&types.FlagRead != 0 && flags&types.FlagWrite != 0 {
		logging.PanicHook("pollbackend: entry requests both READ and WRITE")
		return types.StatusError, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch typ {
	case types.EventTimer:
		return p.registerTimerLocked(classSet, flags, fn, data, info, lock)
	case types.EventDevice:
		return p.registerDeviceLocked(classSet, flags, fn, data, info, lock)
	case types.EventMainLoop:
		return p.registerMainLoopLocked(classSet, flags, fn, data, lock)
	default:
		logging.PanicHook("pollbackend: unsupported event type %v", typ)
		return types.StatusError, nil
	}
}

func (p *PollBackend) registerTimerLocked(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, info int64, lock sync.Locker) (types.Status, error) {
	if info < 0 {
		logging.PanicHook("pollbackend: TIMER info (period) must be non-negative, got %d", info)
		return types.StatusError, nil
	}
	if classSet != types.NewClassSet() {
		logging.PanicHook("pollbackend: TIMER class set must be exactly the universal class, got %s", classSet)
		return types.StatusError, nil
	}
	e := p.pool.Get()
	e.ClassSet = classSet
	e.Flags = flags
	e.Function = fn
	e.ClientData = data
	e.Type = types.EventTimer
	e.Info = info
	e.Lock = lock
	e.FireTime = p.now() + info
	e.Period = info
	e.Ref()
	p.timers.Insert(e)
	logging.Default().WithRequest(info, "register-timer").WithClass(classSet).Debug("timer registered")
	return types.StatusSuccess, nil
}

func (p *PollBackend) registerMainLoopLocked(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, lock sync.Locker) (types.Status, error) {
	e := p.pool.Get()
	e.ClassSet = classSet
	e.Flags = flags
	e.Function = fn
	e.ClientData = data
	e.Type = types.EventMainLoop
	e.Lock = lock
	e.Ref()
	p.mainLoop.Add(e)
	logging.Default().WithRequest(0, "register-mainloop").WithClass(classSet).Debug("main-loop entry registered")
	return types.StatusSuccess, nil
}

func (p *PollBackend) registerDeviceLocked(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, info int64, lock sync.Locker) (types.Status, error) {
	effective := flags
	if effective&(types.FlagRead|types.FlagWrite) == 0 {
		effective |= types.FlagRead // spec.md §4.2: DEVICE defaults to READ
	}

	e := p.pool.Get()
	e.ClassSet = classSet
	e.Flags = flags
	e.Function = fn
	e.ClientData = data
	e.Type = types.EventDevice
	e.Info = info
	e.Lock = lock

	occupied := make([]types.Class, 0, len(types.Classes()))
	rollback := func() {
		for _, c := range occupied {
			idx := p.indexes[c]
			slot, ok := idx.Slot(info)
			if !ok {
				continue
			}
			if effective&types.FlagRead != 0 {
				slot.ClearReader()
			}
			if effective&types.FlagWrite != 0 {
				slot.ClearWriter()
			}
			idx.CompactIfEmpty(info)
		}
	}

	for _, c := range types.Classes() {
		if !classSet.Has(c) {
			continue
		}
		idx := p.indexes[c]
		if idx == nil {
			idx = readiness.NewIndex(0)
			p.indexes[c] = idx
		}
		slot, err := idx.GetOrCreate(info)
		if err != nil {
			rollback()
			p.observer.ObserveSlotTableFull()
			logging.Default().WithDevice(info).WithError(err).Warn("device registration failed: slot table full")
			return types.StatusInsufficientResources, err
		}
		if effective&types.FlagRead != 0 {
			if !slot.SetReader(e, types.FlagRead) {
				rollback()
				logging.PanicHook("pollbackend: a reader is already registered for waitable %d in class %s", info, c)
				return types.StatusError, nil
			}
		}
		if effective&types.FlagWrite != 0 {
			if !slot.SetWriter(e, types.FlagWrite) {
				rollback()
				logging.PanicHook("pollbackend: a writer is already registered for waitable %d in class %s", info, c)
				return types.StatusError, nil
			}
		}
		occupied = append(occupied, c)
	}

	e.Ref()
	p.deviceQueue.Add(e)
	p.armWatch(info, effective)
	logging.Default().WithDevice(info).WithRequest(info, "register-device").WithClass(classSet).Debug("device entry registered")
	return types.StatusSuccess, nil
}

// armWatch updates the backend-wide poller registration for waitable to
// reflect one more interested entry with the given effective flags.
func (p *PollBackend) armWatch(waitable int64, effective types.Flags) {
	w := p.watches[waitable]
	if w == nil {
		w = &watch{}
		p.watches[waitable] = w
	}
	if effective&types.FlagRead != 0 {
		w.readers++
	}
	if effective&types.FlagWrite != 0 {
		w.writers++
	}
	var err error
	if !w.armed {
		err = p.wait.add(waitable, w.readers > 0, w.writers > 0)
		w.armed = err == nil
	} else {
		err = p.wait.mod(waitable, w.readers > 0, w.writers > 0)
	}
	if err != nil {
		logging.WarnHook("pollbackend: arming waitable %d failed: %v", waitable, err)
	}
}

// disarmWatch reflects one fewer interested entry for waitable, tearing
// down the poller registration once no entry in any class wants it anymore.
func (p *PollBackend) disarmWatch(waitable int64, effective types.Flags) {
	w := p.watches[waitable]
	if w == nil {
		return
	}
	if effective&types.FlagRead != 0 && w.readers > 0 {
		w.readers--
	}
	if effective&types.FlagWrite != 0 && w.writers > 0 {
		w.writers--
	}
	if w.readers == 0 && w.writers == 0 {
		if w.armed {
			if err := p.wait.del(waitable); err != nil {
				logging.WarnHook("pollbackend: disarming waitable %d failed: %v", waitable, err)
			}
		}
		delete(p.watches, waitable)
		return
	}
	if err := p.wait.mod(waitable, w.readers > 0, w.writers > 0); err != nil {
		logging.WarnHook("pollbackend: updating waitable %d failed: %v", waitable, err)
	}
}

// Remove implements spec.md §4.3.
func (p *PollBackend) Remove(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch typ {
	case types.EventTimer:
		e := p.timers.FindMatch(classSet, flags, fn, data, typ)
		if e == nil {
			return false
		}
		p.timers.Remove(e)
		p.release(e)
		logging.Default().WithRequest(e.Info, "remove-timer").WithClass(classSet).Debug("timer removed")
		return true
	case types.EventMainLoop:
		e := p.mainLoop.FindMatch(classSet, flags, fn, data, typ)
		if e == nil {
			return false
		}
		p.mainLoop.Remove(e)
		p.release(e)
		logging.Default().WithRequest(0, "remove-mainloop").WithClass(classSet).Debug("main-loop entry removed")
		return true
	case types.EventDevice:
		e := p.deviceQueue.FindMatch(classSet, flags, fn, data, typ)
		if e == nil {
			return false
		}
		p.deviceQueue.Remove(e)
		effective := e.Flags
		if effective&(types.FlagRead|types.FlagWrite) == 0 {
			effective |= types.FlagRead
		}
		for _, c := range types.Classes() {
			if !e.ClassSet.Has(c) {
				continue
			}
			idx := p.indexes[c]
			if idx == nil {
				continue
			}
			if slot, ok := idx.Slot(e.Info); ok {
				if effective&types.FlagRead != 0 {
					slot.ClearReader()
				}
				if effective&types.FlagWrite != 0 {
					slot.ClearWriter()
				}
				idx.CompactIfEmpty(e.Info)
			}
		}
		p.disarmWatch(e.Info, effective)
		p.release(e)
		logging.Default().WithDevice(e.Info).WithRequest(e.Info, "remove-device").WithClass(classSet).Debug("device entry removed")
		return true
	default:
		return false
	}
}

// release drops the owning reference established at registration and
// recycles the entry once its refcount reaches zero.
func (p *PollBackend) release(e *entry.Entry) {
	if e.Unref() {
		p.pool.Put(e)
	}
}
