package registry

import (
	"fmt"
	"sort"

	"reel/internal/config"
	"reel/internal/services"
)

// ValidateStageOptions checks every applicable stage's configured option
// table against its declared schema. Missing required keys are a
// configuration error; unknown keys are returned as warnings. Runs at job
// creation so misconfiguration never surfaces mid-run.
func ValidateStageOptions(cfg *config.Config, workflow Workflow) ([]string, error) {
	defs, err := ForWorkflow(string(workflow))
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, def := range defs {
		stageCfg := cfg.StageConfig(def.Name)

		if stageCfg.SchemaVersion != 0 && stageCfg.SchemaVersion != def.SchemaVersion {
			return nil, services.Wrap(services.ErrConfiguration, def.Name, "validate options",
				fmt.Sprintf("schema_version %d not supported (current %d)", stageCfg.SchemaVersion, def.SchemaVersion), nil)
		}

		for _, required := range def.RequiredOptions {
			if _, ok := stageCfg.Options[required]; !ok {
				return nil, services.Wrap(services.ErrConfiguration, def.Name, "validate options",
					fmt.Sprintf("required option %q missing", required), nil)
			}
		}

		known := make(map[string]struct{}, len(def.KnownOptions))
		for _, key := range def.KnownOptions {
			known[key] = struct{}{}
		}
		var unknown []string
		for key := range stageCfg.Options {
			if _, ok := known[key]; !ok {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			warnings = append(warnings, fmt.Sprintf("%s: unknown option %q ignored", def.Name, key))
		}
	}
	return warnings, nil
}
