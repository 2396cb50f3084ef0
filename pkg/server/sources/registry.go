package sources

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]SourceFactory)
	mu       sync.RWMutex
)

// Register adds a source factory to the registry under "type.name".
func Register(name string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// Create creates a new source instance by type and name. When no factory is
// registered for "type.name", the "driver" config key selects the factory,
// which lets several instances of one implementation run under their own
// names. The instance name is passed to the factory as config["name"].
func Create(sourceType, name string, config map[string]interface{}) (Source, error) {
	cfg := make(map[string]interface{}, len(config)+1)
	for k, v := range config {
		cfg[k] = v
	}
	cfg["name"] = name
	config = cfg

	mu.RLock()
	key := fmt.Sprintf("%s.%s", sourceType, name)
	factory, ok := registry[key]
	if !ok {
		if driver, isStr := config["driver"].(string); isStr && driver != "" {
			key = fmt.Sprintf("%s.%s", sourceType, driver)
			factory, ok = registry[key]
		}
	}
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}

	return factory(config)
}

// List returns all registered source names, sorted
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
