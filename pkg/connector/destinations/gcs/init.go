package gcs

import (
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("gcs", func(cfg *config.BaseConfig) (core.Destination, error) {
		return NewGCSDestination(cfg)
	})
}
