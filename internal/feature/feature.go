// Package feature is the enablement lookup gating workflow actions.
// Flags come from configuration and are injected explicitly; nothing
// reads ambient process state at call time.
package feature

// Well-known flag names.
const (
	ChargesEnabled = "charges.enabled"
	RunsEnabled    = "runs.enabled"
	RunsExport     = "runs.export"
)

type Flags map[string]bool

func (f Flags) Enabled(name string) bool {
	return f[name]
}

// Defaults is the flag set used when configuration supplies none.
func Defaults() Flags {
	return Flags{
		ChargesEnabled: true,
		RunsEnabled:    true,
		RunsExport:     true,
	}
}

// Override applies configured overrides on top of the defaults.
func Override(overrides map[string]bool) Flags {
	f := Defaults()
	for name, enabled := range overrides {
		f[name] = enabled
	}

	return f
}
