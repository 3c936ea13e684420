package metadata

import (
	"maps"
	"strings"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// Keys of a remote descriptor that map onto differently named fields.
var descriptorRenames = map[string]string{
	"@name":                FieldName,
	"@plugin_id":           "plugin_id",
	"qgis_minimum_version": FieldHostMinimumVersion,
	"qgis_maximum_version": FieldHostMaximumVersion,
	"author_name":          FieldAuthor,
	"author_email":         FieldEmail,
	"code_repository":      FieldRepository,
}

const (
	descriptorVersionAttr = "@version"
	archiveSuffix         = ".zip"
)

// FromRemoteDescriptor builds a record from one plugin entry of a remote index.
// Attributes carry an "@" prefix. The attribute and element forms of the version
// must agree. Without an explicit id, the id is derived from file_name, which must
// look like "<id>.<version>.zip".
func FromRemoteDescriptor(descriptor map[string]string) (*Record, error) {
	raw := maps.Clone(descriptor)
	if raw == nil {
		return nil, errutils.Wrap(errutils.ErrTypeMismatch, "descriptor must be a mapping")
	}

	for from, to := range descriptorRenames {
		v, ok := raw[from]
		if !ok {
			continue
		}
		delete(raw, from)
		if other, taken := raw[to]; taken && other != v {
			return nil, errutils.Wrapf(errutils.ErrInvalidValue,
				"descriptor keys %s and %s disagree: %q and %q", from, to, v, other)
		}
		raw[to] = v
	}

	if attr, ok := raw[descriptorVersionAttr]; ok {
		if elem, ok := raw[FieldVersion]; ok && elem != attr {
			return nil, errutils.Wrapf(errutils.ErrInvalidValue,
				"descriptor has two versions: %q and %q", attr, elem)
		}
		if _, ok := raw[FieldVersion]; !ok {
			raw[FieldVersion] = attr
		}
		delete(raw, descriptorVersionAttr)
	}

	if _, ok := raw[FieldID]; !ok {
		id, err := idFromFileName(raw[FieldFileName], raw[FieldVersion])
		if err != nil {
			return nil, err
		}
		raw[FieldID] = id
	}
	return NewRecord(raw)
}

func idFromFileName(fileName, ver string) (string, error) {
	if fileName == "" {
		return "", errutils.Wrap(errutils.ErrInvalidValue, "descriptor has neither id nor file_name")
	}
	if ver == "" {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "can not derive id from %q without a version", fileName)
	}
	if !strings.HasSuffix(strings.ToLower(fileName), archiveSuffix) {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "file_name %q does not end in %s", fileName, archiveSuffix)
	}
	stem := fileName[:len(fileName)-len(archiveSuffix)]
	marker := "." + ver
	if !strings.HasSuffix(stem, marker) || len(stem) == len(marker) {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "file_name %q does not carry version %q", fileName, ver)
	}
	return stem[:len(stem)-len(marker)], nil
}
