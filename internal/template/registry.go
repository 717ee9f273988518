// Package template holds the static notification template registry and the
// placeholder renderer. The registry is built once at startup from compiled-in
// defaults plus an optional JSON override blob, and is immutable afterwards.
package template

import (
	"encoding/json"
	"fmt"

	"pawdesk/internal/types"
)

// Template is one renderable message definition. Title and Body may contain
// {{placeholder}} markers substituted at render time.
type Template struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// RequiredVariables lists placeholders that must be supplied for the
	// message to make sense. Rendering does not enforce them (missing values
	// become empty strings); the list exists for override validation and
	// operator tooling.
	RequiredVariables []string `json:"required_variables,omitempty"`
}

// builtin is the compiled-in template set. Every TemplateKey constant has an
// entry here; overrides may restyle them but cannot remove one.
var builtin = map[types.TemplateKey]Template{
	types.TemplateSubscriptionExpiring: {
		Title:             "Sua assinatura está acabando",
		Body:              "Olá {{name}}, seu período de teste termina em {{days}} dia(s). Assine para continuar usando o sistema.",
		RequiredVariables: []string{"name", "days"},
	},
	types.TemplatePaymentReminder: {
		Title:             "Pagamento pendente",
		Body:              "Olá {{name}}, identificamos um pagamento pendente na sua assinatura. Regularize para evitar o bloqueio do acesso.",
		RequiredVariables: []string{"name"},
	},
	types.TemplateAppointmentReminder: {
		Title:             "Lembrete de agendamento",
		Body:              "Olá {{name}}, o atendimento de {{pet}} está marcado para {{time}}.",
		RequiredVariables: []string{"name", "pet", "time"},
	},
	types.TemplateAppointmentConfirmed: {
		Title:             "Agendamento confirmado",
		Body:              "O atendimento de {{pet}} foi confirmado para {{time}}.",
		RequiredVariables: []string{"pet", "time"},
	},
	types.TemplatePetReady: {
		Title:             "{{pet}} está pronto!",
		Body:              "{{pet}} já está pronto para ser retirado. Até já!",
		RequiredVariables: []string{"pet"},
	},
	types.TemplatePetCheckedIn: {
		Title:             "Check-in realizado",
		Body:              "{{pet}} chegou e já está sendo cuidado pela nossa equipe.",
		RequiredVariables: []string{"pet"},
	},
	types.TemplatePetCheckedOut: {
		Title:             "Check-out realizado",
		Body:              "{{pet}} foi retirado. Obrigado pela preferência!",
		RequiredVariables: []string{"pet"},
	},
	types.TemplateStaffInvite: {
		Title:             "Convite de acesso",
		Body:              "Você foi convidado para a equipe de {{shop}}. Use o código {{code}} para ativar seu acesso.",
		RequiredVariables: []string{"shop", "code"},
	},
}

// Registry is the immutable template lookup used by the renderer.
type Registry struct {
	templates map[types.TemplateKey]Template
}

// NewRegistry builds the registry from the builtin set merged with the
// optional overridesJSON blob (a map of template key -> Template). Overrides
// replace whole entries. An override for an unknown key or one that empties
// the Body of a builtin template is rejected at startup.
func NewRegistry(overridesJSON string) (*Registry, error) {
	merged := make(map[types.TemplateKey]Template, len(builtin))
	for k, v := range builtin {
		merged[k] = v
	}

	if overridesJSON != "" {
		var overrides map[types.TemplateKey]Template
		if err := json.Unmarshal([]byte(overridesJSON), &overrides); err != nil {
			return nil, fmt.Errorf("parsing template overrides: %w", err)
		}
		for key, tpl := range overrides {
			if _, known := builtin[key]; !known {
				return nil, fmt.Errorf("template override for unknown key %q", key)
			}
			if tpl.Body == "" {
				return nil, fmt.Errorf("template override for %q has empty body", key)
			}
			if len(tpl.RequiredVariables) == 0 {
				tpl.RequiredVariables = builtin[key].RequiredVariables
			}
			merged[key] = tpl
		}
	}

	return &Registry{templates: merged}, nil
}

// Get returns the template for key, or an AppError with code
// not_found_template when no such template exists.
func (r *Registry) Get(key types.TemplateKey) (Template, error) {
	tpl, ok := r.templates[key]
	if !ok {
		return Template{}, types.NewAppError(types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("no template registered for key %q", key), nil)
	}
	return tpl, nil
}

// Keys returns all registered template keys, for diagnostics.
func (r *Registry) Keys() []types.TemplateKey {
	keys := make([]types.TemplateKey, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	return keys
}
