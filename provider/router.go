package provider

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/convoke/convoke/logging"
)

// Settings holds the connection configuration of one backend.
type Settings struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
}

// Constructor builds a client for one concrete (settings, model) pair.
// Adapters export one and the composition point installs it into the router's
// lookup table; new providers are added by extending the table, not by
// runtime reflection.
type Constructor func(settings Settings, model string) (ChatModel, error)

// RouterOptions configures a Router.
type RouterOptions struct {
	Logger logging.Logger
}

// Router maps (provider, model) pairs to constructed clients, caching each
// exact pair. It is safe for concurrent use.
type Router struct {
	mu       sync.Mutex
	settings map[string]Settings
	table    map[string]Constructor
	cache    map[string]ChatModel
	logger   logging.Logger
}

// NewRouter constructs a router over the given per-provider settings. The
// constructor table starts empty; install adapters with RegisterProvider.
func NewRouter(settings map[string]Settings, optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	normalized := make(map[string]Settings, len(settings))
	for name, s := range settings {
		normalized[strings.ToLower(name)] = s
	}
	return &Router{
		settings: normalized,
		table:    make(map[string]Constructor),
		cache:    make(map[string]ChatModel),
		logger:   logging.OrNoop(opts.Logger),
	}
}

// RegisterProvider installs (or replaces) a constructor for a provider name.
func (r *Router) RegisterProvider(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[strings.ToLower(name)] = ctor
}

// Providers lists the names with an installed constructor.
func (r *Router) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	return names
}

// Client resolves a (provider, model) pair to a client, building and caching
// it on first use. An empty model falls back to the provider's default model.
func (r *Router) Client(providerName, modelName string) (ChatModel, error) {
	name := strings.ToLower(providerName)

	r.mu.Lock()
	defer r.mu.Unlock()

	ctor, ok := r.table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotSupported, providerName)
	}

	settings := r.settings[name]
	if settings.APIKey == "" && settings.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s has no credentials or base URL", ErrProviderNotConfigured, providerName)
	}

	model := modelName
	if model == "" {
		model = settings.DefaultModel
	}

	key := name + "/" + model
	if client, ok := r.cache[key]; ok {
		return client, nil
	}

	client, err := ctor(settings, model)
	if err != nil {
		return nil, fmt.Errorf("construct %s client: %w", providerName, err)
	}
	r.cache[key] = client
	r.logger.Debug("provider.client.constructed", "provider", name, "model", model)
	return client, nil
}
