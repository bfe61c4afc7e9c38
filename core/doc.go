// Package core defines the shared data model of the orchestration engine:
// sessions and their status machine, execution plans, progress events, cost
// records, project context and the error taxonomy used across packages.
//
// Types in this package carry no behavior beyond validation and defensive
// copying; orchestration logic lives in the controller, coordinator and
// planner packages that consume them.
package core
