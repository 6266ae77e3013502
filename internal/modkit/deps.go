// Package modkit provides module wiring and core deps
package modkit

import (
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/config"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/logger"
	"github.com/OCHA-DAP/hdx-resource-changedetection/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	KV  store.KVStore
}

// ZeroOK returns true when deps are safe to use with zero values in tests
// consumers should still nil check KV before use
func (d Deps) ZeroOK() bool { return true }
