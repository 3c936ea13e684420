package metadata

import (
	"bytes"
	"maps"

	"gopkg.in/ini.v1"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// ManifestFileName is the manifest every plugin directory carries.
const ManifestFileName = "metadata.txt"

const manifestSection = "general"

var manifestLoadOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
}

// FromManifestText parses a metadata.txt document. The id is not part of the
// manifest; it is the name of the plugin directory.
func FromManifestText(id string, text []byte) (*Record, error) {
	cfg, err := ini.LoadSources(manifestLoadOptions, text)
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrParse, "failed to parse %s: %v", ManifestFileName, err)
	}
	section, err := cfg.GetSection(manifestSection)
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrParse, "%s has no [%s] section", ManifestFileName, manifestSection)
	}

	raw := maps.Clone(section.KeysHash())
	if raw == nil {
		raw = map[string]string{}
	}
	raw[FieldID] = id
	return NewRecord(raw)
}

// ManifestText renders the set fields as a metadata.txt document.
func (r *Record) ManifestText() ([]byte, error) {
	cfg := ini.Empty()
	section, err := cfg.NewSection(manifestSection)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to create manifest section")
	}
	for _, name := range r.order {
		f := r.fields[name]
		if name == FieldID || !f.HasValue() {
			continue
		}
		s, err := f.ValueString()
		if err != nil {
			return nil, err
		}
		if _, err := section.NewKey(name, s); err != nil {
			return nil, errutils.Wrapf(err, "failed to write manifest key %q", name)
		}
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return nil, errutils.Wrap(err, "failed to render manifest")
	}
	return buf.Bytes(), nil
}
