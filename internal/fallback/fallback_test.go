package fallback

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/drivestream/internal/domain"
)

type fakeURLs struct{}

func (fakeURLs) ViewerURL(id string) string { return "https://drive/file/d/" + id + "/view" }
func (fakeURLs) DownloadURL(id string) string { return "https://drive/uc?export=download&id=" + id }
func (fakeURLs) PreviewURL(id string) string { return "https://drive/file/d/" + id + "/preview" }

func req(t *testing.T, id string, mode domain.Mode) domain.ResourceRequest {
	t.Helper()
	r, err := domain.NewResourceRequest(id, mode, "")
	require.NoError(t, err)
	return r
}

func failure(reason domain.FailureReason) *domain.ResolutionFailure {
	return &domain.ResolutionFailure{
		ResolutionID: "res-1",
		Tried: []domain.Candidate{
			{URL: "https://drive/uc?id=F", Origin: domain.OriginDirectExport, Profile: domain.HeaderProfile{Name: "download"}},
			{URL: "https://drive/file/d/F/view", Origin: domain.OriginViewerPage, Profile: domain.HeaderProfile{Name: "browser"}},
		},
		LastStatus: 200,
		Reason:     reason,
	}
}

func TestComposer_RedirectModes(t *testing.T) {
	c := New(fakeURLs{}, "", "", true)

	got := c.Redirect(req(t, "F", domain.ModeRedirect))
	assert.Equal(t, http.StatusFound, got.Status)
	assert.Equal(t, "https://drive/file/d/F/view", got.Location)

	got = c.Redirect(req(t, "F", domain.ModePreview))
	assert.Equal(t, "https://drive/file/d/F/preview", got.Location)

	// The failure is irrelevant for redirect modes.
	got = c.Compose(req(t, "F", domain.ModeRedirect), failure(domain.ReasonNotFound))
	assert.Equal(t, http.StatusFound, got.Status)
	assert.Equal(t, "https://drive/file/d/F/view", got.Location)
}

func TestComposer_JSONFailure(t *testing.T) {
	c := New(fakeURLs{}, "https://proxy.example.com/", "", true)

	got := c.Compose(req(t, "F", domain.ModeJSON), failure(domain.ReasonAllHTML))

	assert.Equal(t, http.StatusOK, got.Status)
	require.NotNil(t, got.JSON)
	d := got.JSON
	assert.False(t, d.Streamable)
	assert.Equal(t, "all_html", d.Reason)
	assert.Equal(t, "res-1", d.ResolutionID)
	assert.Equal(t, 200, d.LastStatus)
	require.Len(t, d.Tried, 2)
	assert.Equal(t, Attempt{URL: "https://drive/file/d/F/view", Origin: "viewer_page", Profile: "browser"}, d.Tried[1])
	assert.Equal(t, Links{
		Viewer:   "https://drive/file/d/F/view",
		Download: "https://drive/uc?export=download&id=F",
		Preview:  "https://drive/file/d/F/preview",
		Proxy:    "https://proxy.example.com/api/stream?id=F",
	}, d.Links)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "content_length")
}

func TestComposer_JSONInternalFault(t *testing.T) {
	c := New(fakeURLs{}, "", "", true)

	got := c.Compose(req(t, "F", domain.ModeJSON), fmt.Errorf("%w: boom", domain.ErrInternalFault))

	require.NotNil(t, got.JSON)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Contains(t, got.JSON.Error, "internal fault")
	assert.Empty(t, got.JSON.Reason)
	assert.Equal(t, "/api/stream?id=F", got.JSON.Links.Proxy)
}

func TestComposer_AutoRedirectsOnFailure(t *testing.T) {
	c := New(fakeURLs{}, "", "", true)

	for _, reason := range []domain.FailureReason{domain.ReasonAllHTML, domain.ReasonNotFound, domain.ReasonUnreachable} {
		got := c.Compose(req(t, "F", domain.ModeAuto), failure(reason))
		assert.Equal(t, http.StatusFound, got.Status, reason)
		assert.Equal(t, "https://drive/file/d/F/view", got.Location, reason)
	}
}

func TestComposer_AutoWithoutRedirect(t *testing.T) {
	c := New(fakeURLs{}, "", "", false)

	tests := []struct {
		err        error
		wantStatus int
	}{
		{failure(domain.ReasonNotFound), http.StatusNotFound},
		{failure(domain.ReasonAllHTML), http.StatusInternalServerError},
		{failure(domain.ReasonUnreachable), http.StatusInternalServerError},
		{domain.ErrInternalFault, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		got := c.Compose(req(t, "F", domain.ModeAuto), tt.err)
		assert.Equal(t, tt.wantStatus, got.Status, tt.err.Error())
		assert.NotEmpty(t, got.Text)
		assert.Empty(t, got.Location)
	}
}

func TestComposer_InternalFaultNeverRedirects(t *testing.T) {
	c := New(fakeURLs{}, "", "", true)

	got := c.Compose(req(t, "F", domain.ModeAuto), domain.ErrInternalFault)

	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestComposer_Resolved(t *testing.T) {
	c := New(fakeURLs{}, "", "/stream", true)
	src := &domain.ResolvedSource{
		ResolutionID:  "res-2",
		ContentType:   "video/mp4",
		ContentLength: 1000,
		Origin:        domain.Candidate{Origin: domain.OriginDerived},
	}

	got := c.Resolved(req(t, "a b", domain.ModeJSON), src)

	require.NotNil(t, got.JSON)
	d := got.JSON
	assert.True(t, d.Streamable)
	assert.Equal(t, "res-2", d.ResolutionID)
	require.NotNil(t, d.ContentLength)
	assert.Equal(t, int64(1000), *d.ContentLength)
	assert.Equal(t, "derived", d.Origin)
	assert.Equal(t, "/stream?id=a+b", d.Links.Proxy)
}
