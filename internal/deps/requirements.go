package deps

import (
	"fmt"

	"reel/internal/config"
	"reel/internal/registry"
)

// builtinStages run inside the control-plane and need no external command.
var builtinStages = map[string]struct{}{
	"ingest":      {},
	"fingerprint": {},
}

// ForConfig builds the dependency list for the configuration: the probe
// binary plus every configured stage command. Stages without a configured
// command are reported too, marked optional when no workflow requires them.
func ForConfig(cfg *config.Config) []Requirement {
	requirements := []Requirement{
		{
			Name:        "FFprobe",
			Command:     cfg.Tools.FFprobe,
			Description: "Media inspection and identity probing",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpeg,
			Description: "Audio sampling for media identity",
		},
	}

	for _, def := range registry.All() {
		if _, builtin := builtinStages[def.Name]; builtin {
			continue
		}
		optional := true
		for _, workflow := range registry.Workflows() {
			if def.RequiredFor(workflow) {
				optional = false
				break
			}
		}
		requirements = append(requirements, Requirement{
			Name:        def.Name,
			Command:     cfg.StageCommand(def.Name),
			Description: fmt.Sprintf("Stage command for %s", def.Name),
			Optional:    optional,
		})
	}
	return requirements
}

// Check evaluates every dependency for the configuration.
func Check(cfg *config.Config) []Status {
	return CheckBinaries(ForConfig(cfg))
}
