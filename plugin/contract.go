package plugin

import "github.com/ragforge/ragforge/model"

// Contract lists the method names a plugin bound to a given kind must
// expose (Required) and may optionally expose (Optional). Checks are
// structural: a method is satisfied if it exists and is callable,
// regardless of the plugin's concrete type.
type Contract struct {
	Required []string
	Optional []string
}

// Contracts maps each closed-set PluginKind to its required/optional
// method set, per the plugin ABI.
var Contracts = map[model.PluginKind]Contract{
	model.KindLoader: {
		Required: []string{"Load"},
		Optional: []string{"Chunk"},
	},
	model.KindEmbedder: {
		Required: []string{"Embed", "EmbedQuery"},
		Optional: []string{"Dimensions"},
	},
	model.KindRetriever: {
		Required: []string{"Store", "Retrieve"},
		Optional: []string{"Delete"},
	},
	model.KindLLM: {
		Required: []string{"Generate"},
		Optional: []string{"GenerateStream"},
	},
	model.KindReranker: {
		Required: []string{"Rerank"},
		Optional: []string{"Score"},
	},
}

// IsKnownKind reports whether kind belongs to the closed PluginKind set.
func IsKnownKind(kind model.PluginKind) bool {
	_, ok := Contracts[kind]
	return ok
}
