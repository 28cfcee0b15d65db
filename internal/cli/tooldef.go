package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cathedral-fabric/fabric/internal/capgate"
	"github.com/cathedral-fabric/fabric/internal/engine"
	"github.com/cathedral-fabric/fabric/internal/sandbox"
	"github.com/cathedral-fabric/fabric/pkg/core"
)

// toolFile is the on-disk form of a run's tool bindings: one entry per
// DAG node name. Tool is a tagged sum type — a closed set of built-in
// Kind variants plus an extension point for wrapped external modules —
// rather than an open class hierarchy. Kind selects which of the
// per-variant fields below apply.
type toolFile struct {
	Tools []toolDef `json:"tools"`
}

type toolDef struct {
	Name         string          `json:"name"`
	Kind         string          `json:"kind"` // "native" | "subprocess" | "remote"
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`
	Fuel         uint64          `json:"fuel"`
	MemBytes     uint64          `json:"mem_bytes"`
	CPUMilli     uint64          `json:"cpu_milli"`
	TimeoutMS    uint64          `json:"timeout_ms"`

	Builtin string   `json:"builtin,omitempty"` // native
	Command []string `json:"command,omitempty"` // subprocess
	URL     string   `json:"url,omitempty"`     // remote
}

// loadToolRegistry reads path as a toolFile and builds the
// engine.Registry a Run dispatches DAG nodes through.
func loadToolRegistry(path string) (engine.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf toolFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("parse tool file: %w", err)
	}

	reg := make(engine.Registry, len(tf.Tools))
	for _, td := range tf.Tools {
		tool, err := buildTool(td)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", td.Name, err)
		}
		reg[td.Name] = tool
	}
	return reg, nil
}

func buildTool(td toolDef) (engine.Tool, error) {
	inputSchema, err := sandbox.CompileSchema(td.Name+".input", td.InputSchema)
	if err != nil {
		return engine.Tool{}, err
	}
	outputSchema, err := sandbox.CompileSchema(td.Name+".output", td.OutputSchema)
	if err != nil {
		return engine.Tool{}, err
	}

	bound := core.ResourceBound{Fuel: td.Fuel, MemBytes: td.MemBytes, CPUMilli: td.CPUMilli}

	caps, err := parseCapabilities(td.Capabilities, bound)
	if err != nil {
		return engine.Tool{}, err
	}

	spec := sandbox.Spec{
		Name:                 td.Name,
		InputSchema:          inputSchema,
		OutputSchema:         outputSchema,
		RequiredCapabilities: caps,
		Bound:                bound,
		NormalizeKind:        sandbox.Json,
		Timeout:              time.Duration(td.TimeoutMS) * time.Millisecond,
	}

	switch td.Kind {
	case "native":
		fn, ok := nativeTools[td.Builtin]
		if !ok {
			return engine.Tool{}, fmt.Errorf("unknown builtin %q", td.Builtin)
		}
		return engine.Tool{
			Spec: spec,
			Exec: func(ctx context.Context, vm *sandbox.VM, input []byte) ([]byte, error) {
				return fn(input)
			},
		}, nil

	case "subprocess":
		if len(td.Command) == 0 {
			return engine.Tool{}, fmt.Errorf("subprocess tool requires a command")
		}
		command := td.Command
		hostCall := sandbox.HostCall{
			Name: "run",
			Capability: func(args []byte) capgate.Request {
				return capgate.Request{Kind: core.CapabilityExec, Resource: bound}
			},
			Exec: func(ctx context.Context, args []byte) ([]byte, error) {
				return runSubprocess(ctx, command, args)
			},
		}
		return engine.Tool{
			Spec:      spec,
			HostCalls: []sandbox.HostCall{hostCall},
			Exec: func(ctx context.Context, vm *sandbox.VM, input []byte) ([]byte, error) {
				return vm.Call(ctx, "run", input)
			},
		}, nil

	case "remote":
		if td.URL == "" {
			return engine.Tool{}, fmt.Errorf("remote tool requires a url")
		}
		domain := hostOf(td.URL)
		url := td.URL
		hostCall := sandbox.HostCall{
			Name: "post",
			Capability: func(args []byte) capgate.Request {
				return capgate.Request{Kind: core.CapabilityNetWrite, Domain: domain}
			},
			Exec: func(ctx context.Context, args []byte) ([]byte, error) {
				return postJSON(ctx, url, args)
			},
		}
		return engine.Tool{
			Spec:      spec,
			HostCalls: []sandbox.HostCall{hostCall},
			Exec: func(ctx context.Context, vm *sandbox.VM, input []byte) ([]byte, error) {
				return vm.Call(ctx, "post", input)
			},
		}, nil

	default:
		return engine.Tool{}, fmt.Errorf("unknown tool kind %q", td.Kind)
	}
}

// nativeTools is the closed set of built-in pure tool bodies its
// "Dynamic dispatch" guidance calls for alongside the external-module
// extension point: no capability gate applies to them, since they touch
// no side-effecting resource.
var nativeTools = map[string]func(input []byte) ([]byte, error){
	"echo": func(input []byte) ([]byte, error) { return input, nil },
	"uppercase": func(input []byte) ([]byte, error) {
		return bytes.ToUpper(input), nil
	},
	"noop": func(input []byte) ([]byte, error) { return []byte("{}"), nil },
}

func runSubprocess(ctx context.Context, command []string, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func postJSON(ctx context.Context, url string, input []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func hostOf(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if i := strings.IndexAny(u, "/:"); i >= 0 {
		u = u[:i]
	}
	return u
}

func parseCapabilities(specs []string, bound core.ResourceBound) ([]capgate.Request, error) {
	reqs := make([]capgate.Request, 0, len(specs))
	for _, s := range specs {
		kind, arg, _ := strings.Cut(s, ":")
		req := capgate.Request{Resource: bound}
		switch kind {
		case "NetRead":
			req.Kind, req.Domain = core.CapabilityNetRead, arg
		case "NetWrite":
			req.Kind, req.Domain = core.CapabilityNetWrite, arg
		case "FsRead":
			req.Kind, req.Path = core.CapabilityFsRead, arg
		case "FsWrite":
			req.Kind, req.Path = core.CapabilityFsWrite, arg
		case "DbRead":
			req.Kind, req.Table = core.CapabilityDbRead, arg
		case "DbWrite":
			req.Kind, req.Table = core.CapabilityDbWrite, arg
		case "EnvRead":
			req.Kind, req.EnvVar = core.CapabilityEnvRead, arg
		case "ClockRead":
			req.Kind = core.CapabilityClockRead
		case "Exec":
			req.Kind = core.CapabilityExec
		case "WasmExec":
			req.Kind = core.CapabilityWasmExec
		default:
			return nil, fmt.Errorf("unknown capability %q", s)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
