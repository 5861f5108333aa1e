package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/bodywerk/bodywerk/internal/gateway"
)

const testBaseURL = "http://api.test/v1"

// fakeCall records one request seen by the fake gateway.
type fakeCall struct {
	Method string
	URL    string
	Body   any
}

// fakeGateway implements [Requester] with canned responses keyed by URL.
type fakeGateway struct {
	mu        sync.Mutex
	responses map[string]*gateway.Response
	errors    map[string]error
	calls     []fakeCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		responses: map[string]*gateway.Response{},
		errors:    map[string]error{},
	}
}

func (f *fakeGateway) respondJSON(url string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.responses[url] = &gateway.Response{Status: http.StatusOK, Header: http.Header{}, Body: data}
}

func (f *fakeGateway) respondRaw(url, body string) {
	f.responses[url] = &gateway.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte(body)}
}

func (f *fakeGateway) failWith(url string, err error) {
	f.errors[url] = err
}

func (f *fakeGateway) do(method, url string, body any) (*gateway.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{Method: method, URL: url, Body: body})

	if err, ok := f.errors[url]; ok {
		return nil, err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("unexpected request: %s %s", method, url)
}

func (f *fakeGateway) Get(ctx context.Context, url string) (*gateway.Response, error) {
	return f.do(http.MethodGet, url, nil)
}

func (f *fakeGateway) Post(ctx context.Context, url string, body any) (*gateway.Response, error) {
	return f.do(http.MethodPost, url, body)
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRefConversions(t *testing.T) {
	t.Run("SimplePlaylist", func(t *testing.T) {
		playlist := SimplePlaylist{
			ID:     "pl1",
			Name:   "Warehouse",
			Owner:  owner{ID: "user1", DisplayName: "DJ User"},
			Public: true,
			Tracks: trackCount{Total: 42},
			Images: []Image{{URL: "http://img/cover.jpg"}},
		}

		ref := playlist.Ref()
		if ref.ID != "pl1" || ref.Name != "Warehouse" {
			t.Errorf("unexpected ref: %+v", ref)
		}
		if ref.Owner != "DJ User" {
			t.Errorf("expected owner display name, got %s", ref.Owner)
		}
		if ref.TrackCount != 42 || !ref.Public {
			t.Errorf("unexpected counts: %+v", ref)
		}
		if ref.CoverURL != "http://img/cover.jpg" {
			t.Errorf("expected first image, got %s", ref.CoverURL)
		}
	})

	t.Run("Track", func(t *testing.T) {
		track := Track{
			ID:         "t1",
			Name:       "Autobahn",
			URI:        "spotify:track:t1",
			PreviewURL: "http://preview/t1",
			Artists:    []artist{{Name: "Kraftwerk"}, {Name: "Guest"}},
			Album:      album{Name: "Autobahn", Images: []Image{{URL: "http://img/album.jpg"}}},
		}

		ref := track.Ref()
		if ref.ID != "t1" || ref.URI != "spotify:track:t1" {
			t.Errorf("unexpected ref: %+v", ref)
		}
		if len(ref.Artists) != 2 || ref.Artists[0] != "Kraftwerk" {
			t.Errorf("unexpected artists: %v", ref.Artists)
		}
		if ref.Album != "Autobahn" || ref.CoverURL != "http://img/album.jpg" {
			t.Errorf("unexpected album fields: %+v", ref)
		}
	})
}

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.73, 0.73},
		{1, 1},
		{1.2, 1},
	}
	for _, c := range cases {
		if got := clamp(c.in); got != c.want {
			t.Errorf("clamp(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
