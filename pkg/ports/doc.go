/*
Package ports defines the driven ports (interfaces) of strata.

# Key Interfaces

  - StackStore: persists and loads filter stack snapshots per session.
  - DistributedLocker: coordinates session access across instances.

RunStackStoreContract is the shared test suite every StackStore
implementation runs.
*/
package ports
