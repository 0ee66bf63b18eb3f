package tools

import (
	"github.com/ppiankov/lemmata/internal/config"
	"go.uber.org/zap"
)

// Builtins returns the registry of every local tool enabled by cfg
func Builtins(cfg config.ToolsConfig, logger *zap.Logger) *Registry {
	list := []Tool{
		PythonRunner{Path: cfg.PythonPath, TimeoutSeconds: cfg.TimeoutSeconds, MemoryLimitMB: cfg.MemoryLimitMB}.Tool(),
		MarkdownTool(),
	}
	if cfg.EnableGo {
		list = append(list, GoRunner{TimeoutSeconds: cfg.TimeoutSeconds}.Tool())
	}
	return NewRegistry(logger, list...)
}

// ScratchTools lists the names of the enabled script sandboxes
func ScratchTools(r *Registry) []string {
	var names []string
	for _, name := range []string{RunPythonTool, RunGoTool} {
		if _, ok := r.tools[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
