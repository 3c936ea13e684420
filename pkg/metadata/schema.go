package metadata

import (
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// Canonical field names.
const (
	FieldID                    = "id"
	FieldName                  = "name"
	FieldDescription           = "description"
	FieldAbout                 = "about"
	FieldCategory              = "category"
	FieldTags                  = "tags"
	FieldChangelog             = "changelog"
	FieldAuthor                = "author"
	FieldEmail                 = "email"
	FieldHomepage              = "homepage"
	FieldTracker               = "tracker"
	FieldRepository            = "repository"
	FieldIcon                  = "icon"
	FieldExperimental          = "experimental"
	FieldDeprecated            = "deprecated"
	FieldDownloadURL           = "download_url"
	FieldFileName              = "file_name"
	FieldPluginDependencies    = "plugin_dependencies"
	FieldHostMinimumVersion    = "qgisMinimumVersion"
	FieldHostMaximumVersion    = "qgisMaximumVersion"
	FieldVersion               = "version"
	FieldHasProcessingProvider = "hasProcessingProvider"
	FieldServer                = "server"
)

type fieldSpec struct {
	name string
	kind Kind
	opts []FieldOption
}

var boolTextOpts = []FieldOption{WithImporter(importBool), WithExporter(boolExporter(model.StyleTrueFalse))}

func boolSpec(name, comment string, opts ...FieldOption) fieldSpec {
	all := append([]FieldOption{WithComment(comment)}, boolTextOpts...)
	return fieldSpec{name: name, kind: KindBool, opts: append(all, opts...)}
}

var schema = []fieldSpec{
	{FieldID, KindString, []FieldOption{Required(), WithComment("module name")}},
	{FieldName, KindString, []FieldOption{Required(), Translatable(), WithComment("human readable plugin name")}},
	{FieldDescription, KindString, []FieldOption{Required(), Translatable(), WithComment("short description of the plugin purpose")}},
	{FieldAbout, KindString, []FieldOption{Required(), Translatable(), WithComment("longer description")}},
	{FieldCategory, KindString, nil},
	{FieldTags, KindTuple, []FieldOption{Translatable(), WithComment("comma separated, spaces allowed")}},
	{FieldChangelog, KindString, []FieldOption{WithComment("may be multiline")}},
	{FieldAuthor, KindString, []FieldOption{Required()}},
	{FieldEmail, KindString, []FieldOption{Required()}},
	{FieldHomepage, KindString, nil},
	{FieldTracker, KindString, nil},
	{FieldRepository, KindString, []FieldOption{Required(), WithComment("url to the source code repository")}},
	{FieldIcon, KindString, nil},
	boolSpec(FieldExperimental, "true if experimental", WithDefault(false)),
	boolSpec(FieldDeprecated, "true if deprecated", WithDefault(false)),
	{FieldDownloadURL, KindString, nil},
	{FieldFileName, KindString, []FieldOption{WithComment("archive name of the release")}},
	{FieldPluginDependencies, KindTuple, []FieldOption{WithComment("comma separated plugin dependencies")}},
	{FieldHostMinimumVersion, KindVersion, []FieldOption{
		Required(),
		WithImporter(func(s string) (any, error) { return version.ParseHost(s, true) }),
		WithExporter(exportOriginal),
	}},
	{FieldHostMaximumVersion, KindVersion, []FieldOption{
		WithImporter(func(s string) (any, error) { return version.ParseHost(s, false) }),
		WithExporter(exportOriginal),
	}},
	{FieldVersion, KindVersion, []FieldOption{
		Required(),
		WithImporter(func(s string) (any, error) { return version.ParsePlugin(s, false) }),
		WithExporter(exportOriginal),
	}},
	boolSpec(FieldHasProcessingProvider, "plugin provides processing algorithms", WithDefault(false)),
	boolSpec(FieldServer, "plugin provides server functions", WithDefault(false)),
}

// SchemaFields returns fresh copies of all canonical fields in schema order.
func SchemaFields() []*Field {
	out := make([]*Field, 0, len(schema))
	for _, spec := range schema {
		f, err := NewField(spec.name, spec.kind, spec.opts...)
		if err != nil {
			// The schema is static; a failure here is a programming error.
			panic(err)
		}
		out = append(out, f)
	}
	return out
}
