// Package services wires the orchestration services together.
//
// Every coordinator holds explicit references to the capabilities it
// needs; nothing is looked up from ambient global state. The registry is
// the one place that composition happens.
package services

import (
	"github.com/fyrsmithlabs/orchestd/internal/health"
	"github.com/fyrsmithlabs/orchestd/internal/orchestrator"
	"github.com/fyrsmithlabs/orchestd/internal/remediation"
	"github.com/fyrsmithlabs/orchestd/internal/troubleshoot"
	"github.com/fyrsmithlabs/orchestd/internal/worker"
)

// Registry provides access to all orchestd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Workers() *worker.Registry
	Orchestrator() *orchestrator.Coordinator
	Monitor() *health.Monitor
	Troubleshoot() *troubleshoot.Service
	Remediation() *remediation.Coordinator
}

// Options configures the registry with service instances.
type Options struct {
	Workers      *worker.Registry
	Orchestrator *orchestrator.Coordinator
	Monitor      *health.Monitor
	Troubleshoot *troubleshoot.Service
	Remediation  *remediation.Coordinator
}

// registry is the concrete implementation of Registry.
type registry struct {
	workers      *worker.Registry
	orchestrator *orchestrator.Coordinator
	monitor      *health.Monitor
	troubleshoot *troubleshoot.Service
	remediation  *remediation.Coordinator
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		workers:      opts.Workers,
		orchestrator: opts.Orchestrator,
		monitor:      opts.Monitor,
		troubleshoot: opts.Troubleshoot,
		remediation:  opts.Remediation,
	}
}

func (r *registry) Workers() *worker.Registry               { return r.workers }
func (r *registry) Orchestrator() *orchestrator.Coordinator { return r.orchestrator }
func (r *registry) Monitor() *health.Monitor                { return r.monitor }
func (r *registry) Troubleshoot() *troubleshoot.Service     { return r.troubleshoot }
func (r *registry) Remediation() *remediation.Coordinator   { return r.remediation }
