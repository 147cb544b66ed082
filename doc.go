// Package lattice is an Entity-Component-System runtime with a statically
// configured, automatically parallelized execution engine.
//
// A declaration (the closed set of component kinds, the closed set of
// systems with their read/write component access, explicit inter-system
// dependencies, and optional inner-parallelism policies) is registered
// before Finalize. From it the engine derives a DAG of systems and a
// schedule that runs independent systems concurrently on a worker pool and,
// when a policy permits, splits one system's subscribed entity range across
// workers.
//
// Work happens in steps. The step body gets a *Step proxy for immediate
// critical operations (entity creation, kills, component add/remove, handle
// minting) and for driving the DAG with ExecuteSystems. System bodies get a
// *DataProxy scoped to one slice of the system's subscription set; they read
// and write components within their declared sets, queue kills and deferred
// closures, and fill a per-subtask output buffer that downstream systems
// consume. After the body returns, the refresh pipeline drains deferred
// closures, reclaims killed entities, and re-matches changed entities
// against every system's required component bitset.
//
// Two systems with no dependency path between them must not conflict on any
// component kind (a write against any access); Finalize rejects declarations
// that violate this, which is what makes the concurrent schedule safe
// without locks around component data.
package lattice
