// Package slowcontrol holds the process's slow-control variables: named,
// typed instrument readouts and setpoints that remote peers can read and
// change over the bus.
//
// Each variable may carry two hooks supplied at registration:
//
//   - a change hook, called with the raw proposed value; its return value
//     is what gets stored, so it can validate, clamp or veto (by returning
//     an error) a change
//   - a read hook, called on every Read to compute the reported value, for
//     variables backed by live hardware rather than a cached value
//
// # Concurrency
//
// The registry map is guarded by an RWMutex that is held only while the
// map itself is accessed. Each Variable guards its own value. Hooks and the
// change notification are always invoked with no lock held, so a hook may
// safely call back into the registry.
//
// # Usage
//
//	reg := slowcontrol.New()
//	_ = reg.Register("pump_speed", slowcontrol.TypeNumber, clampSpeed, nil)
//
//	stored, err := reg.Change("pump_speed", "250")
//	speed, err := slowcontrol.Value[float64](reg, "pump_speed")
package slowcontrol
