// Package extension defines the optional plugin surface for bank-specific
// rules, executive reporting and batch operation. Nothing in this repository
// implements it; the pipeline consults the installed Plugin and the default
// is Absent, which offers no capability at all.
package extension

import "context"

// PluginInfo describes an installed plugin
type PluginInfo struct {
	Name           string
	Version        string
	Vendor         string
	MinCoreVersion string
}

// Plugin is the entry point of an extension
type Plugin interface {
	Info() PluginInfo
	RulePack() RulePack
}

// RulePack groups the capabilities of a plugin. Each accessor returns nil
// when the plugin does not offer that capability.
type RulePack interface {
	BankRules() BankRuleProvider
	ReportRenderer() ReportRenderer
	BatchRunner() BatchRunner
}

// BankRuleProvider supplies bank-specific handling of raw input rows
type BankRuleProvider interface {
	SupportedBanks() []string
	// NormalizeRow remaps a raw row before it is turned into a record.
	NormalizeRow(bank string, row map[string]string) (map[string]string, error)
	// MatchingHints returns advisory data for a record; it never decides a match.
	MatchingHints(bank string, context map[string]interface{}) map[string]interface{}
}

// ReportRenderer produces presentation artifacts from a finished run directory
type ReportRenderer interface {
	Render(ctx context.Context, runDir, outputDir string, options map[string]interface{}) ([]string, error)
}

// BatchRunner executes many runs from a manifest
type BatchRunner interface {
	RunBatch(ctx context.Context, manifestPath, outputDir string, options map[string]interface{}) error
}

// Absent is the default plugin: it has no capabilities
type Absent struct{}

var _ Plugin = Absent{}

// Info implements Plugin
func (Absent) Info() PluginInfo {
	return PluginInfo{Name: "none"}
}

// RulePack implements Plugin
func (Absent) RulePack() RulePack {
	return absentPack{}
}

type absentPack struct{}

func (absentPack) BankRules() BankRuleProvider    { return nil }
func (absentPack) ReportRenderer() ReportRenderer { return nil }
func (absentPack) BatchRunner() BatchRunner       { return nil }

// BankRulesFor returns the plugin's bank rule provider, or nil when p is nil
// or does not offer one.
func BankRulesFor(p Plugin) BankRuleProvider {
	if p == nil {
		return nil
	}
	pack := p.RulePack()
	if pack == nil {
		return nil
	}
	return pack.BankRules()
}

// Supports reports whether provider handles bank
func Supports(provider BankRuleProvider, bank string) bool {
	if provider == nil || bank == "" {
		return false
	}
	for _, b := range provider.SupportedBanks() {
		if b == bank {
			return true
		}
	}
	return false
}
