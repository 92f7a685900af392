package bigquery

import (
	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/connector/core"
	"github.com/zenithml/zenith/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource("bigquery", func(cfg *config.BaseConfig) (core.Source, error) {
		return NewBigQuerySource(cfg)
	})
}
