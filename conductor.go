// Package conductor provides a high-level façade over the session engine:
// transport selection, the session controller, the planner and the execution
// coordinator. Most applications interact with this package by:
//  1. Creating a Conductor via New() (optionally supplying config, a keyring
//     and durable stores)
//  2. Loading project context and running a coordinated session (Run), or
//     driving a raw session directly (StartSession / Pause / Resume / Cancel)
//  3. Subscribing to the event bus for progress, state and metrics topics
//
// The façade selects exactly one transport at construction time: the native
// agent CLI when it is installed, otherwise the remote streaming API when a
// provider key is configured. All defaults are safe for local development;
// production deployments typically supply a durable ledger and a structured
// logger.
package conductor

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindmapper/conductor/bridge"
	nativebridge "github.com/mindmapper/conductor/bridge/native"
	remotebridge "github.com/mindmapper/conductor/bridge/remote"
	"github.com/mindmapper/conductor/bus"
	"github.com/mindmapper/conductor/config"
	"github.com/mindmapper/conductor/contextmgr"
	"github.com/mindmapper/conductor/controller"
	"github.com/mindmapper/conductor/coordinator"
	"github.com/mindmapper/conductor/core"
	"github.com/mindmapper/conductor/keyring"
	"github.com/mindmapper/conductor/ledger"
	"github.com/mindmapper/conductor/logging"
	"github.com/mindmapper/conductor/metrics"
	"github.com/mindmapper/conductor/model"
	anthropicmodel "github.com/mindmapper/conductor/model/anthropic"
	"github.com/mindmapper/conductor/planner"
	"github.com/mindmapper/conductor/registry"
)

// Transport identifies the selected bridge variant.
type Transport string

const (
	// TransportNative drives the locally installed agent CLI.
	TransportNative Transport = "native"
	// TransportRemote streams through a provider API.
	TransportRemote Transport = "remote"
)

// Options configures the Conductor instance.
type Options struct {
	// Config supplies engine settings. Defaults to config.Default().
	Config config.Config
	// Keyring holds provider API keys for the remote transport. Defaults to
	// an empty in-memory store.
	Keyring keyring.Store
	// CostStore overrides the ledger selected by Config.LedgerPath.
	CostStore core.CostStore
	// Bridge overrides transport selection entirely.
	Bridge bridge.Bridge
	// Model overrides the provider model used by the remote transport.
	Model model.Model
	// Registerer receives the Prometheus collectors. Nil disables metrics
	// registration.
	Registerer prometheus.Registerer
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Conductor is the high-level façade aggregating the engine's components.
type Conductor struct {
	cfg       config.Config
	transport Transport
	bridge    bridge.Bridge
	bus       *bus.Bus
	registry  *registry.Registry
	contexts  *contextmgr.Manager
	ctrl      *controller.Controller
	coord     *coordinator.Coordinator
	costs     core.CostStore
	ownsStore bool
	logger    logging.Logger
}

// New creates a Conductor, selecting the transport once via capability
// detection. Construction order is bridge, then controller, then
// coordinator; the coordinator never holds a controller back-reference.
func New(ctx context.Context, optFns ...func(o *Options)) (*Conductor, error) {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Keyring == nil {
		opts.Keyring = keyring.NewInMemory()
	}

	costs, ownsStore, err := selectLedger(opts)
	if err != nil {
		return nil, err
	}

	b, transport, err := selectBridge(ctx, opts)
	if err != nil {
		return nil, err
	}

	eventBus := bus.New(func(o *bus.Options) {
		o.Logger = opts.Logger
	})
	collectors := metrics.New(opts.Registerer)
	roster := registry.New()

	ctrl := controller.New(b, eventBus, func(o *controller.Options) {
		o.CostStore = costs
		o.Keyring = opts.Keyring
		o.Metrics = collectors
		o.MetricsInterval = opts.Config.MetricsInterval
		o.Logger = opts.Logger
	})

	plnr := planner.New(b, roster, func(o *planner.Options) {
		o.TurnTimeout = opts.Config.PlanningTimeout
		o.Logger = opts.Logger
	})

	coord := coordinator.New(plnr, roster, eventBus, func(o *coordinator.Options) {
		o.Logger = opts.Logger
	})

	opts.Logger.Info("conductor initialized", "transport", string(transport))

	return &Conductor{
		cfg:       opts.Config,
		transport: transport,
		bridge:    b,
		bus:       eventBus,
		registry:  roster,
		contexts:  contextmgr.New(),
		ctrl:      ctrl,
		coord:     coord,
		costs:     costs,
		ownsStore: ownsStore,
		logger:    opts.Logger,
	}, nil
}

// selectLedger resolves the cost store: an explicit override, the SQLite
// ledger at the configured path, or the in-memory fallback.
func selectLedger(opts Options) (core.CostStore, bool, error) {
	if opts.CostStore != nil {
		return opts.CostStore, false, nil
	}
	if opts.Config.LedgerPath != "" {
		store, err := ledger.OpenSQLite(opts.Config.LedgerPath)
		if err != nil {
			return nil, false, fmt.Errorf("open cost ledger: %w", err)
		}
		return store, true, nil
	}
	return ledger.NewInMemory(), false, nil
}

// selectBridge picks the transport once: an explicit override, the native
// CLI when installed, otherwise the remote API when a provider key exists.
func selectBridge(ctx context.Context, opts Options) (bridge.Bridge, Transport, error) {
	if opts.Bridge != nil {
		return opts.Bridge, transportOf(opts.Bridge), nil
	}

	native := nativebridge.New(func(o *nativebridge.Options) {
		o.Command = opts.Config.CLIPath
		o.EventBufferSize = opts.Config.EventBuffer
		o.Logger = opts.Logger
	})
	avail, err := native.DetectAvailability(ctx)
	if err == nil && avail.Available {
		opts.Logger.Info("native transport selected", "version", avail.Version)
		return native, TransportNative, nil
	}

	mdl := opts.Model
	if mdl == nil {
		key, ok := opts.Keyring.Get("anthropic")
		if !ok {
			return nil, "", &core.SpawnError{Err: fmt.Errorf(
				"no transport available: %s; and no anthropic API key configured", avail.Reason)}
		}
		mdl = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = key
			if opts.Config.Model != "" {
				o.Model = anthropic.Model(opts.Config.Model)
			}
		})
	}
	remote := remotebridge.New(mdl, func(o *remotebridge.Options) {
		o.EventBufferSize = opts.Config.EventBuffer
		o.Logger = opts.Logger
	})
	opts.Logger.Info("remote transport selected")
	return remote, TransportRemote, nil
}

func transportOf(b bridge.Bridge) Transport {
	if _, ok := b.(*nativebridge.Bridge); ok {
		return TransportNative
	}
	return TransportRemote
}

// Transport reports which bridge variant was selected at construction.
func (c *Conductor) Transport() Transport { return c.transport }

// Bus returns the event bus for observer subscriptions.
func (c *Conductor) Bus() *bus.Bus { return c.bus }

// Registry returns the fixed agent roster.
func (c *Conductor) Registry() *registry.Registry { return c.registry }

// Controller returns the session controller for direct session control.
func (c *Conductor) Controller() *controller.Controller { return c.ctrl }

// LoadContext derives the session's project context from a serialized graph
// payload.
func (c *Conductor) LoadContext(data []byte) (core.ProjectContext, error) {
	return c.contexts.Load(data)
}

// StartSession starts a raw bridge session with the configured defaults.
func (c *Conductor) StartSession(ctx context.Context, prompt string) (*core.Session, error) {
	return c.ctrl.StartSession(ctx, core.StartOptions{
		Prompt:    prompt,
		OutputDir: c.cfg.OutputDir,
		Model:     c.cfg.Model,
		HandsOff:  c.cfg.HandsOff,
	})
}

// Run executes one coordinated session against the loaded project context:
// plan (with local fallback), then the sequential task walk.
func (c *Conductor) Run(ctx context.Context) (*coordinator.Result, error) {
	project := c.contexts.Current()
	return c.coord.StartSession(ctx, coordinator.StartInput{
		Context:  project,
		HandsOff: c.cfg.HandsOff,
		Meta:     planner.Meta{Objective: project.ProjectName},
	})
}

// Pause pauses the active session.
func (c *Conductor) Pause() error { return c.ctrl.PauseSession() }

// Resume resumes a paused session and releases any coordinator approval
// hold.
func (c *Conductor) Resume() error {
	c.coord.Resume()
	return c.ctrl.ResumeSession()
}

// Cancel requests cooperative termination of the active session.
func (c *Conductor) Cancel(ctx context.Context) (bridge.CancelResult, error) {
	return c.ctrl.CancelSession(ctx)
}

// CostSummary aggregates the cost ledger.
func (c *Conductor) CostSummary() (core.CostSummary, error) {
	records, err := c.costs.ReadAll()
	if err != nil {
		return core.CostSummary{}, err
	}
	return core.Summarize(records), nil
}

// Close tears down subscriptions and the ledger it owns.
func (c *Conductor) Close() error {
	c.coord.Close()
	c.ctrl.Close()
	c.contexts.Reset()
	if c.ownsStore {
		if closer, ok := c.costs.(interface{ Close() error }); ok {
			return closer.Close()
		}
	}
	return nil
}
