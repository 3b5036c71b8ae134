package control

import (
	"net/http"

	"github.com/flowruntime/flowruntime/component"
)

// componentInfo is the GET /component listing entry: a Registration's
// metadata plus the input/output ports its instances declare, which
// Registration itself doesn't carry (only an instantiated Discoverable
// does). Field names follow spec.md §6.1's wire shape
// (`{name, category, init, inputs, outputs}`) exactly, with the
// registration's protocol/domain/description/version carried alongside
// as additive fields (§11 of the expanded scope).
type componentInfo struct {
	Name        string                 `json:"name"`
	Category    string                 `json:"category"`
	Protocol    string                 `json:"protocol,omitempty"`
	Domain      string                 `json:"domain,omitempty"`
	Description string                 `json:"description,omitempty"`
	Version     string                 `json:"version,omitempty"`
	Init        component.ConfigSchema `json:"init"`
	Inputs      []component.Port       `json:"inputs"`
	Outputs     []component.Port       `json:"outputs"`
}

// noopEmitter discards every Emit call; used only to preview a factory's
// declared ports without wiring it to a real channel.
type noopEmitter struct{}

func (noopEmitter) Emit(slot string, item any) error { return nil }

// handleListComponents answers GET /component: every registered
// component type with its schema and declared ports. Ports are
// discovered by a throwaway "preview" instantiation with no raw config,
// since Registration itself only carries metadata and schema — every
// factory this runtime ships applies non-empty defaults when handed nil
// config, so this preview call never fails in practice.
func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	var out []componentInfo
	for _, reg := range s.registry.List() {
		info := componentInfo{
			Name:        reg.Name,
			Category:    reg.Type,
			Protocol:    reg.Protocol,
			Domain:      reg.Domain,
			Description: reg.Description,
			Version:     reg.Version,
			Init:        reg.Schema,
		}
		if inst, err := reg.Factory(nil, component.Dependencies{Logger: noopLogger{}}, noopEmitter{}); err == nil {
			info.Inputs = inst.InputPorts()
			info.Outputs = inst.OutputPorts()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
