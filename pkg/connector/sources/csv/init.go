package csv

import (
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("csv", func(cfg *config.BaseConfig) (core.Source, error) {
		return NewCSVSource(cfg)
	})
}
