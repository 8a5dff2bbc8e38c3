// Package generator turns a payload descriptor into concrete JSON-shaped
// values. Two kinds exist: a schema-driven generator that walks an ordered
// list of field specs, and a script-driven generator that runs sandboxed
// user code. Both satisfy Generator so the rest of the runtime never cares
// which kind backs a given device.
package generator

import (
	"fmt"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// Generator produces one payload. The schema generator applies
// deviceMetadata over its generated fields (metadata wins on a name
// collision); the script generator exposes deviceMetadata to the script
// and returns only what the script assigned to result.
type Generator interface {
	Generate(deviceMetadata model.Payload) (model.Payload, error)
}

// New builds the Generator described by desc, validating it eagerly so a
// malformed schema or script fails at construction rather than on first
// tick.
func New(desc model.PayloadDescriptor) (Generator, error) {
	switch desc.Kind {
	case model.PayloadKindSchema:
		return NewSchema(desc.Schema)
	case model.PayloadKindScript:
		return NewScript(desc.Script)
	default:
		return nil, simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("unknown payload kind %q", desc.Kind))
	}
}
