// Package candidate builds the ordered list of upstream URLs tried for a file.
package candidate

import (
	"net/url"
	"strings"

	"github.com/iconidentify/drivestream/internal/domain"
	"github.com/iconidentify/drivestream/internal/profile"
)

// Hosts are the upstream origins, without trailing slash.
type Hosts struct {
	Drive   string
	Docs    string
	Content string
}

// Generator produces candidates. It performs no I/O.
type Generator struct {
	hosts    Hosts
	profiles *profile.Library
}

// NewGenerator creates a candidate generator.
func NewGenerator(hosts Hosts, profiles *profile.Library) *Generator {
	return &Generator{
		hosts: Hosts{
			Drive:   strings.TrimRight(hosts.Drive, "/"),
			Docs:    strings.TrimRight(hosts.Docs, "/"),
			Content: strings.TrimRight(hosts.Content, "/"),
		},
		profiles: profiles,
	}
}

// Generate returns the candidates for id, most likely to succeed first.
// The result depends only on id.
func (g *Generator) Generate(id string) []domain.Candidate {
	q := url.QueryEscape(id)
	return []domain.Candidate{
		{
			URL:     g.hosts.Drive + "/uc?export=download&id=" + q,
			Profile: g.profiles.Get(profile.Download),
			Origin:  domain.OriginDirectExport,
		},
		{
			URL:     g.ContentDownloadURL(id, ""),
			Profile: g.profiles.Get(profile.Download),
			Origin:  domain.OriginDirectExport,
		},
		{
			URL:     g.hosts.Docs + "/uc?export=download&id=" + q,
			Profile: g.profiles.Get(profile.Minimal),
			Origin:  domain.OriginDocExport,
		},
		{
			URL:     g.hosts.Drive + "/uc?id=" + q + "&authuser=0&export=download",
			Profile: g.profiles.Get(profile.Download),
			Origin:  domain.OriginAuthUserExport,
		},
		{
			URL:     g.ViewerURL(id),
			Profile: g.profiles.Get(profile.Browser),
			Origin:  domain.OriginViewerPage,
		},
	}
}

// ViewerURL is the human-facing page for the file.
func (g *Generator) ViewerURL(id string) string {
	return g.hosts.Drive + "/file/d/" + url.PathEscape(id) + "/view"
}

// PreviewURL is the embeddable viewer for the file.
func (g *Generator) PreviewURL(id string) string {
	return g.hosts.Drive + "/file/d/" + url.PathEscape(id) + "/preview"
}

// DownloadURL is the classic export-download link for the file.
func (g *Generator) DownloadURL(id string) string {
	return g.hosts.Drive + "/uc?export=download&id=" + url.QueryEscape(id)
}

// ContentDownloadURL is the download endpoint on the content host, optionally
// carrying a confirmation token.
func (g *Generator) ContentDownloadURL(id, confirm string) string {
	u := g.hosts.Content + "/download?id=" + url.QueryEscape(id) + "&export=download"
	if confirm != "" {
		u += "&confirm=" + url.QueryEscape(confirm)
	}
	return u
}

// Hosts returns the normalized upstream origins.
func (g *Generator) Hosts() Hosts {
	return g.hosts
}
