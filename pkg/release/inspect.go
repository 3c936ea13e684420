package release

import (
	"github.com/d5/tengo/v2/parser"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// Factory names looked up in a plugin's entry point.
const (
	FactoryClass              = "classFactory"
	FactoryServer             = "serverClassFactory"
	FactoryProcessingProvider = "processingProvider"
)

// DefinesName reports whether the tengo source introduces name at top level. A name
// counts when a top-level assignment or definition binds it (this covers function
// literals and renamed imports such as `f := import("m")`), or when it is a key of
// the module's `export {...}` map. The source is parsed, never executed.
func DefinesName(src []byte, name string) (bool, error) {
	fileSet := parser.NewFileSet()
	srcFile := fileSet.AddFile(EntryPointFileName, -1, len(src))
	file, err := parser.NewParser(srcFile, src, nil).ParseFile()
	if err != nil {
		return false, errutils.Wrapf(errutils.ErrParse, "failed to parse %s: %v", EntryPointFileName, err)
	}

	for _, stmt := range file.Stmts {
		switch s := stmt.(type) {
		case *parser.AssignStmt:
			for _, lhs := range s.LHS {
				if ident, ok := lhs.(*parser.Ident); ok && ident.Name == name {
					return true, nil
				}
			}
		case *parser.ExportStmt:
			if m, ok := s.Result.(*parser.MapLit); ok {
				for _, el := range m.Elements {
					if el.Key == name {
						return true, nil
					}
				}
			}
		}
	}
	return false, nil
}
