package configs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/opencontainers/runtime-spec/specs-go"
)

// HookName identifies one of the OCI lifecycle hook points. Only Prestart
// is ever invoked, by the bootstrap coordinator; Poststart/Poststop lists are
// parsed and stored, but nothing in this module runs them.
type HookName string

const (
	Prestart HookName = "prestart"
	Poststart HookName = "poststart"
	Poststop HookName = "poststop"
)

// Hook is a single lifecycle hook invocation: an executable, its arguments,
// environment, and an optional timeout.
type Hook struct {
	Path string `json:"path"`
	Args []string `json:"args,omitempty"`
	Env []string `json:"env,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// HookList is an ordered sequence of hooks for one HookName.
type HookList []Hook

// Hooks groups every hook list by lifecycle point.
type Hooks map[HookName]HookList

// FromOCI builds a HookList from the OCI spec's hook entries, resolving a
// bundle-relative Path against bundleDir with filepath-securejoin so a
// malicious bundle cannot point a hook outside of it.
func FromOCI(in []specs.Hook, bundleDir string) (HookList, error) {
	out := make(HookList, 0, len(in))
	for _, h := range in {
 path := h.Path
 if bundleDir != "" && !isAbs(path) {
 joined, err := securejoin.SecureJoin(bundleDir, path)
 if err != nil {
 return nil, fmt.Errorf("resolving hook path %q: %w", path, err)
 }
 path = joined
 }
 hook := Hook{Path: path, Args: h.Args, Env: h.Env}
 if h.Timeout != nil {
 hook.Timeout = time.Duration(*h.Timeout) * time.Second
 }
 out = append(out, hook)
	}
	return out, nil
}

func isAbs(p string) bool {
	return len(p) > 0 && p[0] == '/'
}

// RunHooks invokes every hook in the list in order with state serialized on
// its standard input, aborting on the first failure.
func (hooks HookList) RunHooks(state *specs.State) error {
	for i, h := range hooks {
 if err := h.run(state); err != nil {
 return fmt.Errorf("hook #%d (%s): %w", i, h.Path, err)
 }
	}
	return nil
}

func (h Hook) run(state *specs.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
 return err
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if h.Timeout > 0 {
 ctx, cancel = context.WithTimeout(ctx, h.Timeout)
 defer cancel()
	}

	cmd := exec.CommandContext(ctx, h.Path)
	if len(h.Args) > 0 {
		cmd.Args = h.Args
	}
	cmd.Env = h.Env
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
 if ctx.Err() == context.DeadlineExceeded {
 return fmt.Errorf("timed out after %s: %s", h.Timeout, stderr.String())
 }
 return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}

// Run runs every hook registered under name, if any.
func (hooks Hooks) Run(name HookName, state *specs.State) error {
	return hooks[name].RunHooks(state)
}
