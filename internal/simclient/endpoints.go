package simclient

import (
	"bytes"
	"context"
	"encoding/json"

	"supersim/internal/diagnostics"
	"supersim/internal/errors"
	"supersim/internal/instrdesc"
	"supersim/internal/isa"
	"supersim/internal/resolve"
	"supersim/internal/snapshot"
)

// SimulateRequest asks the backend to run the program from the start up to Tick.
type SimulateRequest struct {
	Tick   int64                `json:"tick"`
	Config isa.SimulationConfig `json:"config"`
}

// SimulateResult is a decoded /simulate reply.
type SimulateResult struct {
	Snapshot      *snapshot.Snapshot
	ExecutedSteps int64
}

// Run calls /simulate and decodes the returned CPU state.
func (c *Client) Run(ctx context.Context, tick int64, cfg isa.SimulationConfig) (*SimulateResult, error) {
	data, err := c.post(ctx, EndpointSimulate, SimulateRequest{Tick: tick, Config: cfg})
	if err != nil {
		return nil, err
	}

	root, err := snapshot.DecodeValue(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "cannot decode simulate response", err)
	}
	obj, ok := root.(*snapshot.Object)
	if !ok {
		return nil, errors.Newf(errors.MalformedSnapshot, "simulate response must be an object")
	}

	state, ok := obj.Get("state")
	if !ok {
		return nil, errors.Newf(errors.MalformedSnapshot, "simulate response has no state")
	}
	if _, isNull := state.(snapshot.Null); isNull {
		// The backend answers 200 with a null state when it refuses the configuration.
		return nil, errors.Newf(errors.BackendRejected, "server error: simulation refused the configuration").
			WithDetails(RejectionDetails{Endpoint: EndpointSimulate, StatusCode: 200, Message: "null state", Kind: "config"})
	}

	snap, err := snapshot.New(state)
	if err != nil {
		return nil, err
	}
	steps, _ := obj.Int("executedSteps")

	if c.logger != nil {
		c.logger.Debug("Simulation received",
			"tick", snap.Tick(),
			"objects", snap.Len(),
			"executedSteps", steps,
		)
	}
	return &SimulateResult{Snapshot: snap, ExecutedSteps: steps}, nil
}

// Simulate returns only the snapshot of a /simulate call.
func (c *Client) Simulate(ctx context.Context, tick int64, cfg isa.SimulationConfig) (*snapshot.Snapshot, error) {
	res, err := c.Run(ctx, tick, cfg)
	if err != nil {
		return nil, err
	}
	return res.Snapshot, nil
}

// ParseAsmRequest checks assembly against the given memory layout.
type ParseAsmRequest struct {
	Code            string               `json:"code"`
	MemoryLocations []isa.MemoryLocation `json:"memoryLocations"`
}

// ParseAsmResponse lists assembly diagnostics.
type ParseAsmResponse struct {
	Success bool               `json:"success"`
	Errors  []diagnostics.Item `json:"errors"`
}

// ParseAsm calls /parseAsm.
func (c *Client) ParseAsm(ctx context.Context, code string, memory []isa.MemoryLocation) (*ParseAsmResponse, error) {
	if memory == nil {
		memory = []isa.MemoryLocation{}
	}
	data, err := c.post(ctx, EndpointParseAsm, ParseAsmRequest{Code: code, MemoryLocations: memory})
	if err != nil {
		return nil, err
	}
	return decodeResponse[ParseAsmResponse](EndpointParseAsm, data)
}

// CompileRequest compiles C code into RISC-V assembly.
type CompileRequest struct {
	Code          string   `json:"code"`
	OptimizeFlags []string `json:"optimizeFlags"`
}

// CompileResponse is the compiler output. AsmToC maps each assembly line to its C
// line; CompilerErrors carry positions in the C source.
type CompileResponse struct {
	Success        bool               `json:"success"`
	Program        string             `json:"program"`
	AsmToC         []int              `json:"asmToC"`
	Error          string             `json:"error,omitempty"`
	CompilerErrors []diagnostics.Item `json:"compilerErrors"`
}

// Compile calls /compile.
func (c *Client) Compile(ctx context.Context, code string, flags []string) (*CompileResponse, error) {
	if flags == nil {
		flags = []string{}
	}
	data, err := c.post(ctx, EndpointCompile, CompileRequest{Code: code, OptimizeFlags: flags})
	if err != nil {
		return nil, err
	}
	return decodeResponse[CompileResponse](EndpointCompile, data)
}

type instructionDescriptionResponse struct {
	Models map[string]instrdesc.Description `json:"models"`
}

// InstructionDescriptions calls /instructionDescription. It satisfies
// instrdesc.Fetcher.
func (c *Client) InstructionDescriptions(ctx context.Context) (map[string]instrdesc.Description, error) {
	data, err := c.post(ctx, EndpointInstructionDescription, struct{}{})
	if err != nil {
		return nil, err
	}
	resp, err := decodeResponse[instructionDescriptionResponse](EndpointInstructionDescription, data)
	if err != nil {
		return nil, err
	}
	if resp.Models == nil {
		resp.Models = map[string]instrdesc.Description{}
	}
	return resp.Models, nil
}

// decodeResponse decodes a reply that may use the backend's reference markers. The
// references are expanded before the plain result is decoded into T.
func decodeResponse[T any](endpoint string, data []byte) (*T, error) {
	root, err := snapshot.DecodeValue(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "cannot decode "+endpoint+" response", err)
	}
	arena, err := snapshot.Index(root)
	if err != nil {
		return nil, err
	}
	resolved, err := resolve.New(arena, resolve.DefaultOptions()).Resolve(root)
	if err != nil {
		return nil, err
	}

	plain, err := json.Marshal(snapshot.Plain(resolved))
	if err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "cannot re-encode "+endpoint+" response", err)
	}
	var out T
	if err := json.Unmarshal(plain, &out); err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "unexpected "+endpoint+" response shape", err)
	}
	return &out, nil
}
