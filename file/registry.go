// SPDX-License-Identifier: ice License 1.0

package file

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/filemeta/analysis"
	"github.com/ice-blockchain/filemeta/logger"
)

type (
	// CapabilityFactory builds an optional capability for the file at path.
	CapabilityFactory func(path string, env *Env) analysis.Capability
	registration      struct {
		factory  CapabilityFactory
		shutdown func() error
		name     string
	}
)

//nolint:gochecknoglobals // Populated from init() of optional capability packages.
var registry = struct {
	image []*registration
	mx    sync.RWMutex
}{}

// RegisterImageCapability adds an optional capability to every image handler created afterwards.
// shutdown, when set, is called once by Shutdown.
func RegisterImageCapability(name string, factory CapabilityFactory, shutdown func() error) {
	registry.mx.Lock()
	defer registry.mx.Unlock()
	for _, r := range registry.image {
		if r.name == name {
			log.Emit(logger.WARNING, "Image capability %v registered twice, keeping the first", name)

			return
		}
	}
	registry.image = append(registry.image, &registration{name: name, factory: factory, shutdown: shutdown})
}

func RegisteredImageCapabilities() []string {
	registry.mx.RLock()
	defer registry.mx.RUnlock()
	names := make([]string, 0, len(registry.image))
	for _, r := range registry.image {
		names = append(names, r.name)
	}

	return names
}

func registeredImageCapabilities(path string, env *Env) []analysis.Capability {
	registry.mx.RLock()
	defer registry.mx.RUnlock()
	capabilities := make([]analysis.Capability, 0, len(registry.image))
	for _, r := range registry.image {
		capabilities = append(capabilities, r.factory(path, env))
	}

	return capabilities
}

// Shutdown releases what the registered capabilities hold. Call it once, when no handler is in use anymore.
func Shutdown() error {
	registry.mx.Lock()
	defer registry.mx.Unlock()
	var mErr *multierror.Error
	for _, r := range registry.image {
		if r.shutdown == nil {
			continue
		}
		if err := r.shutdown(); err != nil {
			mErr = multierror.Append(mErr, errors.Wrapf(err, "failed to shutdown %v image capability", r.name))
		}
		r.shutdown = nil
	}

	return mErr.ErrorOrNil() //nolint:wrapcheck // .
}
