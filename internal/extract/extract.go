// Package extract recovers follow-up download links from the HTML pages the
// upstream serves in place of file bytes.
package extract

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/iconidentify/drivestream/internal/domain"
)

// Hosts are the upstream origins substituted into rule templates.
type Hosts struct {
	Drive   string
	Content string
}

// Extractor applies a pattern set to interstitial documents.
type Extractor struct {
	set      *PatternSet
	hosts    Hosts
	maxLinks int
}

// New creates an extractor. maxLinks caps the number of links returned.
func New(set *PatternSet, hosts Hosts, maxLinks int) *Extractor {
	if maxLinks <= 0 {
		maxLinks = 4
	}
	return &Extractor{
		set: set,
		hosts: Hosts{
			Drive:   strings.TrimRight(hosts.Drive, "/"),
			Content: strings.TrimRight(hosts.Content, "/"),
		},
		maxLinks: maxLinks,
	}
}

// Version reports the version of the loaded pattern set.
func (e *Extractor) Version() string {
	return e.set.Version
}

// Extract scans doc, an interstitial page served for file id, and returns the
// links it carries, best first. No match yields an empty slice.
func (e *Extractor) Extract(id string, doc []byte) []domain.ExtractedLink {
	text := normalize(string(doc))
	fill := strings.NewReplacer(
		"{id}", url.QueryEscape(id),
		"{content_host}", e.hosts.Content,
		"{drive_host}", e.hosts.Drive,
	)

	links := []domain.ExtractedLink{}
	seen := make(map[string]bool)
	add := func(rule *Rule, raw string) {
		u, ok := cleanURL(raw)
		if !ok || seen[u] {
			return
		}
		seen[u] = true
		links = append(links, domain.ExtractedLink{
			URL:        u,
			Confidence: rule.confidence,
			Rule:       rule.Name,
		})
	}

	var page *goquery.Document
	for i := range e.set.Rules {
		rule := &e.set.Rules[i]

		if rule.Kind == KindForm {
			if page == nil {
				var err error
				if page, err = goquery.NewDocumentFromReader(bytes.NewReader(doc)); err != nil {
					continue
				}
			}
			for _, raw := range e.formLinks(page, rule.Selector, id) {
				add(rule, raw)
			}
			continue
		}

		if id == "" && strings.Contains(rule.Template, "{id}") {
			continue
		}
		template := fill.Replace(rule.Template)
		for _, m := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			add(rule, string(rule.re.ExpandString(nil, template, text, m)))
		}
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Confidence > links[j].Confidence
	})
	if len(links) > e.maxLinks {
		links = links[:e.maxLinks]
	}
	return links
}

// formLinks turns GET forms into URLs carrying their hidden inputs.
func (e *Extractor) formLinks(page *goquery.Document, selector, id string) []string {
	base, err := url.Parse(e.hosts.Drive + "/")
	if err != nil {
		return nil
	}

	var out []string
	page.Find(selector).Each(func(_ int, form *goquery.Selection) {
		if method, ok := form.Attr("method"); ok && !strings.EqualFold(strings.TrimSpace(method), "get") {
			return
		}
		action := strings.TrimSpace(form.AttrOr("action", ""))
		if action == "" {
			return
		}
		ref, err := url.Parse(action)
		if err != nil {
			return
		}
		target := base.ResolveReference(ref)

		query := target.Query()
		form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
			if kind := input.AttrOr("type", "hidden"); !strings.EqualFold(kind, "hidden") {
				return
			}
			query.Set(input.AttrOr("name", ""), input.AttrOr("value", ""))
		})
		if query.Get("id") == "" && id != "" {
			query.Set("id", id)
		}
		target.RawQuery = query.Encode()
		out = append(out, target.String())
	})
	return out
}

var scriptEscapes = strings.NewReplacer(
	`\u003d`, "=", `\u003D`, "=",
	`\u0026`, "&",
	`\u003c`, "<", `\u003C`, "<",
	`\u003e`, ">", `\u003E`, ">",
	`\u0022`, `"`,
	`\u0027`, "'",
	`\x3d`, "=", `\x3D`, "=",
	`\x26`, "&",
	`\/`, "/",
)

// normalize undoes the escaping used when URLs are embedded in scripts and
// attributes, so one set of patterns matches every form.
func normalize(doc string) string {
	return html.UnescapeString(scriptEscapes.Replace(doc))
}

// cleanURL decodes entity-escaped ampersands, strips stray quotes and
// trailing punctuation, and accepts only absolute http(s) URLs.
func cleanURL(raw string) (string, bool) {
	s := html.UnescapeString(strings.TrimSpace(raw))
	s = strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, `\;,)`)

	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return "", false
	}
	return s, true
}
