// Package config normalizes both legacy and enhanced pipeline
// configuration shapes into one canonical model.PipelineConfig, and
// resolves version specifiers against a plugin's catalog of available
// versions.
package config

import (
	"encoding/json"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/ragerr"
	"gopkg.in/yaml.v3"
)

// ParseAny decodes raw bytes as JSON or, failing that, YAML, into a
// generic map ready for Normalize. Both encodings land on the same
// map[string]any shape after decoding, since yaml.v3 normalizes nested
// mapping keys to strings.
func ParseAny(raw []byte) (map[string]any, error) {
	var asJSON map[string]any
	if err := json.Unmarshal(raw, &asJSON); err == nil {
		return asJSON, nil
	}

	var asYAML map[string]any
	if err := yaml.Unmarshal(raw, &asYAML); err != nil {
		return nil, ragerr.Wrap(ragerr.InvalidInput, "config is neither valid JSON nor YAML", err)
	}
	return asYAML, nil
}

// Normalize accepts either the legacy or the enhanced input shape and
// produces exactly one canonical model.PipelineConfig. It is idempotent:
// Normalize(ToMap(Normalize(cfg))) == Normalize(cfg).
func Normalize(raw map[string]any) (model.PipelineConfig, error) {
	if raw == nil {
		return model.PipelineConfig{}, ragerr.New(ragerr.InvalidInput, "config must be a non-null object")
	}

	out := model.PipelineConfig{
		Namespace: stringOr(raw["namespace"], "default"),
		Plugins:   make(map[model.PluginKind]map[string]model.PluginSpec),
	}

	if enhanced, ok := raw["plugins"].(map[string]any); ok {
		normalizeEnhancedPlugins(enhanced, &out)
	} else {
		normalizeLegacyPlugins(raw, &out)
	}

	out.Pipeline = normalizePipelineSection(raw)
	out.Performance, _ = raw["performance"].(map[string]any)
	out.Observability, _ = raw["observability"].(map[string]any)
	out.Metadata = normalizeMetadata(raw["metadata"])
	out.Cache, _ = raw["cache"].(map[string]any)
	out.Limits, _ = raw["limits"].(map[string]any)
	out.Storage, _ = raw["storage"].(map[string]any)

	if err := checkConsistency(out); err != nil {
		return model.PipelineConfig{}, err
	}
	return out, nil
}

func normalizeEnhancedPlugins(enhanced map[string]any, out *model.PipelineConfig) {
	for kindStr, namesRaw := range enhanced {
		kind := model.PluginKind(kindStr)
		names, ok := namesRaw.(map[string]any)
		if !ok {
			continue
		}
		for name, specRaw := range names {
			spec := normalizeSpec(specRaw, name)
			if out.Plugins[kind] == nil {
				out.Plugins[kind] = make(map[string]model.PluginSpec)
			}
			out.Plugins[kind][name] = spec
		}
	}
}

// normalizeLegacyPlugins projects legacy top-level kind sections
// (`loader`, `embedder`, ...) into the canonical kind order.
func normalizeLegacyPlugins(raw map[string]any, out *model.PipelineConfig) {
	for _, kind := range model.CanonicalKindOrder {
		section, ok := raw[string(kind)].(map[string]any)
		if !ok {
			continue
		}
		for name, bare := range section {
			spec := normalizeSpec(bare, name)
			if out.Plugins[kind] == nil {
				out.Plugins[kind] = make(map[string]model.PluginSpec)
			}
			out.Plugins[kind][name] = spec
		}
	}
}

// normalizeSpec accepts either a bare identifier or an object form and
// always returns the object form.
func normalizeSpec(raw any, fallbackName string) model.PluginSpec {
	switch v := raw.(type) {
	case string:
		return model.PluginSpec{
			Name:    fallbackName,
			Version: "latest",
			Source:  model.SourceRegistry,
			Enabled: true,
		}
	case map[string]any:
		spec := model.PluginSpec{
			Name:    stringOr(v["name"], fallbackName),
			Version: stringOr(v["version"], "latest"),
			Source:  model.SpecSource(stringOr(v["source"], string(model.SourceRegistry))),
			URL:     stringOr(v["url"], ""),
			Path:    stringOr(v["path"], ""),
			Enabled: boolOr(v["enabled"], true),
			Fallback: stringOr(v["fallback"], ""),
		}
		if cfg, ok := v["config"].(map[string]any); ok {
			spec.Config = cfg
		}
		return spec
	default:
		return model.PluginSpec{
			Name:    fallbackName,
			Version: "latest",
			Source:  model.SourceRegistry,
			Enabled: true,
		}
	}
}

// normalizePipelineSection turns `pipeline` (either an ordered array of
// kind names, or an enhanced {stages:[...]} object) into an ordered
// []model.PipelineStage, dropping entries whose stage is not a string or
// whose name, when present, is not a string.
func normalizePipelineSection(raw map[string]any) model.PipelineDef {
	def := model.PipelineDef{}

	pipelineRaw, ok := raw["pipeline"]
	if !ok {
		return def
	}

	switch v := pipelineRaw.(type) {
	case []any:
		for _, entryRaw := range v {
			if kindStr, ok := entryRaw.(string); ok {
				def.Stages = append(def.Stages, model.PipelineStage{Stage: model.PluginKind(kindStr)})
			}
		}
	case map[string]any:
		stagesRaw, _ := v["stages"].([]any)
		for _, entryRaw := range stagesRaw {
			switch e := entryRaw.(type) {
			case string:
				def.Stages = append(def.Stages, model.PipelineStage{Stage: model.PluginKind(e)})
			case map[string]any:
				stageStr, stageOK := e["stage"].(string)
				nameRaw, hasName := e["name"]
				name, nameHasString := nameRaw.(string)
				if !stageOK || (hasName && !nameHasString) {
					continue
				}
				stage := model.PipelineStage{Stage: model.PluginKind(stageStr)}
				if nameHasString {
					stage.Name = name
				}
				options := make(map[string]any)
				for k, val := range e {
					if k == "stage" || k == "name" {
						continue
					}
					options[k] = val
				}
				if len(options) > 0 {
					stage.Options = options
				}
				def.Stages = append(def.Stages, stage)
			}
		}
		def.Retries, _ = v["retries"].(map[string]any)
	}
	return def
}

func normalizeMetadata(raw any) model.ConfigMetadata {
	m, ok := raw.(map[string]any)
	if !ok {
		return model.ConfigMetadata{}
	}
	meta := model.ConfigMetadata{
		Name:    stringOr(m["name"], ""),
		Version: stringOr(m["version"], ""),
	}
	extra := make(map[string]any)
	for k, v := range m {
		if k == "name" || k == "version" {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		meta.Extra = extra
	}
	return meta
}

// checkConsistency verifies every pipeline stage has at least one
// configured plugin of that kind, and every fallback references a
// sibling that exists within the same kind.
func checkConsistency(cfg model.PipelineConfig) error {
	for _, stage := range cfg.Pipeline.Stages {
		if len(cfg.Plugins[stage.Stage]) == 0 {
			return ragerr.Newf(ragerr.InvalidInput,
				"pipeline stage %q has no configured plugin", stage.Stage)
		}
	}
	for kind, byName := range cfg.Plugins {
		for name, spec := range byName {
			if spec.Fallback == "" {
				continue
			}
			if _, ok := byName[spec.Fallback]; !ok {
				return ragerr.Newf(ragerr.InvalidInput,
					"plugin %q of kind %q references unknown fallback %q", name, kind, spec.Fallback)
			}
		}
	}
	return nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func boolOr(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// ToMap renders a canonical PipelineConfig back into the generic map
// shape, used to verify Normalize's idempotence.
func ToMap(cfg model.PipelineConfig) map[string]any {
	plugins := make(map[string]any, len(cfg.Plugins))
	for kind, byName := range cfg.Plugins {
		names := make(map[string]any, len(byName))
		for name, spec := range byName {
			names[name] = map[string]any{
				"name":     spec.Name,
				"version":  spec.Version,
				"source":   string(spec.Source),
				"url":      spec.URL,
				"path":     spec.Path,
				"config":   spec.Config,
				"enabled":  spec.Enabled,
				"fallback": spec.Fallback,
			}
		}
		plugins[string(kind)] = names
	}

	stages := make([]any, 0, len(cfg.Pipeline.Stages))
	for _, s := range cfg.Pipeline.Stages {
		entry := map[string]any{"stage": string(s.Stage)}
		if s.Name != "" {
			entry["name"] = s.Name
		}
		for k, v := range s.Options {
			entry[k] = v
		}
		stages = append(stages, entry)
	}

	return map[string]any{
		"namespace": cfg.Namespace,
		"plugins":   plugins,
		"pipeline": map[string]any{
			"stages":  stages,
			"retries": cfg.Pipeline.Retries,
		},
		"performance":   cfg.Performance,
		"observability": cfg.Observability,
		"metadata": map[string]any{
			"name":    cfg.Metadata.Name,
			"version": cfg.Metadata.Version,
		},
		"cache":   cfg.Cache,
		"limits":  cfg.Limits,
		"storage": cfg.Storage,
	}
}
