package domain

import (
	"strings"

	m "runnel.dev/pkg/runnel/internal/model"
)

const docFence = "```"

// runnableFenceAttrs are the info string entries rustdoc still executes.
var runnableFenceAttrs = map[string]struct{}{
	"":             {},
	"rust":         {},
	"should_panic": {},
	"edition2015":  {},
	"edition2018":  {},
	"edition2021":  {},
}

// Classification is one runnable a definition yields, before it gets an id
// and a place in the tree.
type Classification struct {
	Kind     m.RunnableKind
	FuncKind m.FuncKind
	Name     string
}

// Classify decides which runnables def yields. A documented test function
// yields a doctest followed by the test itself. Classify only reads from p.
func Classify(p SemanticProvider, def m.Definition) []Classification {
	if !canHostDoctest(def.Kind) {
		return nil
	}

	attrs := p.AttributesAndDocsOf(def)

	var out []Classification

	if HasRunnableDoctest(attrs.Docs) {
		out = append(out, Classification{Kind: m.RunnableDoctest})
	}

	if def.Kind != m.DefFunction {
		return out
	}

	name, ok := p.NameOf(def)
	if !ok {
		return out
	}

	if kind, ok := functionKind(p, def, name, attrs.Paths); ok {
		out = append(out, Classification{Kind: m.RunnableFunction, FuncKind: kind, Name: name})
	}

	return out
}

func functionKind(p SemanticProvider, def m.Definition, name string, attrPaths []string) (m.FuncKind, bool) {
	if name == "main" && p.IsCrateRoot(p.ParentOf(def)) {
		return m.FuncBin, true
	}

	for _, path := range attrPaths {
		if strings.Contains(path, "test") {
			return m.FuncTest, true
		}
	}

	for _, path := range attrPaths {
		if path == "bench" {
			return m.FuncBench, true
		}
	}

	return "", false
}

func canHostDoctest(kind m.DefKind) bool {
	switch kind {
	case m.DefModule, m.DefFunction, m.DefStruct, m.DefEnum, m.DefUnion, m.DefTrait,
		m.DefConst, m.DefStatic, m.DefTypeAlias, m.DefImpl:
		return true
	}

	return false
}

// HasRunnableDoctest reports whether docs open at least one code block rustdoc
// would run. Closing fences are not headers and are skipped.
func HasRunnableDoctest(docs string) bool {
	inBlock := false

	for _, line := range strings.Split(docs, "\n") {
		header, ok := strings.CutPrefix(strings.TrimSpace(line), docFence)
		if !ok {
			continue
		}

		if inBlock {
			inBlock = false
			continue
		}

		inBlock = true

		if runnableHeader(header) {
			return true
		}
	}

	return false
}

func runnableHeader(header string) bool {
	for _, attr := range strings.Split(header, ",") {
		if _, ok := runnableFenceAttrs[strings.TrimSpace(attr)]; !ok {
			return false
		}
	}

	return true
}
