package generator

import (
	"math/rand"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// deniedGlobals mirrors python_runner.py's dangerous_attrs denylist: names a
// script must never be able to reach, even indirectly through the standard
// JS global object goja exposes.
var deniedGlobals = []string{"eval", "Function", "Reflect", "Proxy", "WebAssembly"}

// Script is a Generator that runs sandboxed user code, the Go stand-in for
// the original's SafePythonExecutor. goja never gives scripts filesystem,
// network, or process access by itself; deniedGlobals additionally closes
// off the handful of JS constructs that could otherwise be used to reach
// outside the declared binding table below.
type Script struct {
	program *goja.Program
}

// NewScript compiles code once so a syntax error surfaces as ConfigInvalid
// at construction, matching compile_code's eager validation.
func NewScript(code string) (*Script, error) {
	program, err := goja.Compile("payload-script", code, true)
	if err != nil {
		return nil, simerrors.Wrap(simerrors.ConfigInvalid, "payload script failed to compile", err)
	}
	return &Script{program: program}, nil
}

// Generate runs the compiled script in a fresh runtime per call: goja
// runtimes are not safe for concurrent use, and a fresh runtime means one
// device's script can never leak state into another's.
func (s *Script) Generate(deviceMetadata model.Payload) (model.Payload, error) {
	vm := goja.New()
	for _, name := range deniedGlobals {
		_ = vm.GlobalObject().Delete(name)
	}

	if err := bindRandom(vm); err != nil {
		return nil, err
	}
	bindings := map[string]any{
		"uuidv4":         func() string { return uuid.NewString() },
		"nowISO":         func() string { return time.Now().UTC().Format(time.RFC3339Nano) },
		"deviceMetadata": map[string]any(deviceMetadata),
		"result":         map[string]any{},
	}
	for name, val := range bindings {
		if err := vm.Set(name, val); err != nil {
			return nil, simerrors.Wrap(simerrors.PayloadGenerationFail, "failed to prepare script sandbox", err)
		}
	}

	if _, err := vm.RunProgram(s.program); err != nil {
		return nil, simerrors.Wrap(simerrors.PayloadGenerationFail, "payload script execution failed", err)
	}

	resultVal := vm.Get("result")
	if resultVal == nil || goja.IsUndefined(resultVal) || goja.IsNull(resultVal) {
		return model.Payload{}, nil
	}
	exported, ok := resultVal.Export().(map[string]any)
	if !ok {
		return nil, simerrors.New(simerrors.PayloadGenerationFail, "script did not assign a plain object to result")
	}
	return model.Payload(exported), nil
}

// bindRandom exposes a small allow-listed subset of math/rand, playing the
// role of ALLOWED_MODULES' "random" entry.
func bindRandom(vm *goja.Runtime) error {
	obj := vm.NewObject()
	if err := obj.Set("int", func(min, max int) int {
		if max <= min {
			return min
		}
		return min + rand.Intn(max-min+1)
	}); err != nil {
		return err
	}
	if err := obj.Set("float", func(min, max float64) float64 {
		if max <= min {
			return min
		}
		return min + rand.Float64()*(max-min)
	}); err != nil {
		return err
	}
	if err := obj.Set("choice", func(choices []any) any {
		if len(choices) == 0 {
			return nil
		}
		return choices[rand.Intn(len(choices))]
	}); err != nil {
		return err
	}
	return vm.Set("random", obj)
}
