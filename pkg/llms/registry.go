package llms

import (
	"fmt"

	"github.com/kadirpekel/conductor/pkg/registry"
)

// ProviderRegistry holds the configured LLM providers by name.
type ProviderRegistry struct {
	*registry.BaseRegistry[LLM]
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{BaseRegistry: registry.NewBaseRegistry[LLM]()}
}

// RegisterProvider registers a provider under its own name.
func (r *ProviderRegistry) RegisterProvider(llm LLM) error {
	if llm == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return r.Register(llm.Name(), llm)
}

// GetProvider returns the provider registered under name.
func (r *ProviderRegistry) GetProvider(name string) (LLM, error) {
	llm, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("llm provider %q not registered (available: %v)", name, r.Names())
	}
	return llm, nil
}
