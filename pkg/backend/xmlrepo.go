package backend

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fetch"
	"github.com/glorpus-work/plugdex/pkg/host"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
)

type xmlPlugins struct {
	XMLName xml.Name    `xml:"plugins"`
	Plugins []xmlPlugin `xml:"pyqgis_plugin"`
}

type xmlPlugin struct {
	Attrs    []xml.Attr   `xml:",any,attr"`
	Elements []xmlElement `xml:",any"`
}

type xmlElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// parseIndex decodes a plugin index document into one descriptor per plugin
// entry. Attributes are keyed with an "@" prefix, child elements by name.
// Empty elements are left out.
func parseIndex(data []byte) ([]map[string]string, error) {
	// Remote indexes carry unescaped ampersands in free text.
	data = bytes.ReplaceAll(data, []byte("& "), []byte("&amp; "))

	var doc xmlPlugins
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errutils.Wrapf(errutils.ErrParse, "plugin index: %v", err)
	}
	out := make([]map[string]string, 0, len(doc.Plugins))
	for _, p := range doc.Plugins {
		d := make(map[string]string, len(p.Attrs)+len(p.Elements))
		for _, a := range p.Attrs {
			d["@"+a.Name.Local] = a.Value
		}
		for _, e := range p.Elements {
			if v := strings.TrimSpace(e.Value); v != "" {
				d[e.XMLName.Local] = v
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// xmlIndex talks to remote plugin indexes.
type xmlIndex struct {
	fetcher     fetch.Fetcher
	host        host.Host
	concurrency int
}

func newXMLIndex(fetcher fetch.Fetcher, h host.Host, concurrency int) *xmlIndex {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &xmlIndex{fetcher: fetcher, host: h, concurrency: concurrency}
}

func validateIndexURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "repository url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errutils.Wrapf(errutils.ErrInvalidValue, "repository url %q must use http or https", raw)
	}
	return nil
}

func (x *xmlIndex) hostQuery() string {
	e := x.host.CompatibilityVersion().Elements()
	return e[0] + "." + e[1]
}

func (x *xmlIndex) request(ctx context.Context, rawURL string, query url.Values, authcfg string) ([]map[string]string, error) {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	data, err := x.fetcher.Request(ctx, rawURL+sep+query.Encode(), authcfg)
	if err != nil {
		return nil, err
	}
	return parseIndex(data)
}

// refresh fetches the listing of repo, then the full release list of every
// distinct plugin in it. Any failed request fails the whole refresh.
func (x *xmlIndex) refresh(ctx context.Context, kind model.Kind, repo *repository.Repository) ([]*release.Release, error) {
	if x.fetcher == nil {
		return nil, errutils.Wrap(errutils.ErrNotImplemented, "no fetcher configured")
	}
	if err := validateIndexURL(repo.URL()); err != nil {
		return nil, err
	}
	hostQuery := x.hostQuery()

	listing, err := x.request(ctx, repo.URL(), url.Values{"qgis": {hostQuery}}, repo.AuthCfg())
	if err != nil {
		return nil, errutils.Wrapf(err, "failed to list %s", repo.URL())
	}
	var ids []string
	seen := map[string]bool{}
	for _, d := range listing {
		r, err := release.FromRemoteDescriptor(kind, repo, d)
		if err != nil {
			return nil, errutils.Wrapf(err, "listing of %s", repo.URL())
		}
		if !seen[r.ID()] {
			seen[r.ID()] = true
			ids = append(ids, r.ID())
		}
	}
	logger.Debug("Plugin index listed", logger.Fields{"repository": repo.ID(), "plugins": len(ids)})

	results := make([][]*release.Release, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			descriptors, err := x.request(gctx, repo.URL(), url.Values{"package_name": {id}, "qgis": {hostQuery}}, repo.AuthCfg())
			if err != nil {
				return fmt.Errorf("failed to fetch releases of %s: %w", id, err)
			}
			releases := make([]*release.Release, 0, len(descriptors))
			for _, d := range descriptors {
				r, err := release.FromRemoteDescriptor(kind, repo, d)
				if err != nil {
					return errutils.Wrapf(err, "release of %s", id)
				}
				releases = append(releases, r)
			}
			results[i] = releases
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*release.Release
	for _, rs := range results {
		all = append(all, rs...)
	}
	return all, nil
}
