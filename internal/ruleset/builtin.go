package ruleset

import (
	"embed"

	"github.com/coffersTech/nanorule/internal/engine"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns the default rule set shipped with the binary.
func Builtin() []engine.Rule {
	rules, err := LoadFS(builtinFS, "builtin")
	if err != nil {
		panic("ruleset: invalid builtin rules: " + err.Error())
	}
	return rules
}
