package driver

import (
	"net/rpc"
	"os/exec"

	plugin "github.com/hashicorp/go-plugin"

	"github.com/forgebuild/forgebuild/internal/buildctx"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/project"
)

// Handshake is the shared handshake config external driver plug-ins and
// forgebuild must agree on, per github.com/hashicorp/go-plugin's usual
// pattern of a magic cookie pair preventing an arbitrary executable from
// being mistaken for a driver plug-in.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "FORGEBUILD_DRIVER_PLUGIN",
	MagicCookieValue: "a1f0e6c2-driver",
}

// RegistrationCall is the flattened, RPC-serializable description of one
// driver registration the plug-in process sends back over the wire: an
// entry point can't cross a process boundary as a closure, so the plug-in
// instead reports which patterns/files/phases it wants registered, and
// rule/condition registration (which needs Go closures for Action and
// Condition) is limited to built-in, in-process drivers. External
// drivers may declare patterns, files and phase hooks, which is enough for
// a thin wrapper driver that shells out to its own language toolchain from
// within each phase callback.
type RegistrationCall struct {
	Patterns map[string]string // name -> glob
	Files    map[string]string // name -> path
	Root     string
}

// DriverRPC is the interface exposed over net/rpc by an external driver
// plug-in process, following the same shape as go-plugin's canonical
// "KV" example (an interface of plain request/response methods, no
// channels or context arguments).
type DriverRPC interface {
	Register() (RegistrationCall, error)
	RunPhase(phase string, projectPath string) error
}

// Plugin implements plugin.Plugin, the factory go-plugin calls to produce
// RPC client/server stubs for DriverRPC.
type Plugin struct {
	Impl DriverRPC
}

func (p *Plugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &driverRPCServer{impl: p.Impl}, nil
}

func (p *Plugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &driverRPCClient{client: c}, nil
}

type driverRPCServer struct {
	impl DriverRPC
}

func (s *driverRPCServer) Register(_ interface{}, resp *RegistrationCall) error {
	r, err := s.impl.Register()
	if err != nil {
		return err
	}

	*resp = r

	return nil
}

type runPhaseArgs struct {
	Phase       string
	ProjectPath string
}

func (s *driverRPCServer) RunPhase(args runPhaseArgs, _ *interface{}) error {
	return s.impl.RunPhase(args.Phase, args.ProjectPath)
}

type driverRPCClient struct {
	client *rpc.Client
}

func (c *driverRPCClient) Register() (RegistrationCall, error) {
	var resp RegistrationCall
	if err := c.client.Call("Plugin.Register", new(interface{}), &resp); err != nil {
		return RegistrationCall{}, errs.WithStackTrace(err)
	}

	return resp, nil
}

func (c *driverRPCClient) RunPhase(phase, projectPath string) error {
	var resp interface{}

	args := runPhaseArgs{Phase: phase, ProjectPath: projectPath}
	if err := c.client.Call("Plugin.RunPhase", args, &resp); err != nil {
		return errs.WithStackTrace(err)
	}

	return nil
}

// loadPluginEntryPoint launches execPath as a go-plugin subprocess,
// dispenses its DriverRPC client, and wraps it as an EntryPoint: the
// entry-point closure registers every pattern/file the plug-in reported
// and phase callbacks that round-trip through RunPhase.
func loadPluginEntryPoint(execPath string) (EntryPoint, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			"driver": &Plugin{},
		},
		Cmd: exec.Command(execPath),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, errs.WithStackTrace(err)
	}

	raw, err := rpcClient.Dispense("driver")
	if err != nil {
		client.Kill()
		return nil, errs.WithStackTrace(err)
	}

	remote, ok := raw.(DriverRPC)
	if !ok {
		client.Kill()
		return nil, errs.Errorf("driver plug-in %s: unexpected dispensed type", execPath)
	}

	return func(api *API) error {
		reg, err := remote.Register()
		if err != nil {
			return err
		}

		for name, g := range reg.Patterns {
			if err := api.Pattern(name, g); err != nil {
				return err
			}
		}

		for name, p := range reg.Files {
			if err := api.File(name, p); err != nil {
				return err
			}
		}

		if reg.Root != "" {
			api.Artefact(reg.Root)
		}

		for _, phase := range PhaseOrder {
			phase := phase

			api.registerPhase(phase, func(ctx *buildctx.Context, p *project.Project) error {
				return remote.RunPhase(string(phase), p.Path)
			})
		}

		return nil
	}, nil
}
