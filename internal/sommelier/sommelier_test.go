package sommelier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/winewize/internal/domain"
)

// fakeAnthropic answers every request with text and records the last request body.
func fakeAnthropic(t *testing.T, status int, text string) (*Client, *apiRequest) {
	t.Helper()
	var last apiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&last))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"type":"overloaded_error","message":"overloaded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{APIKey: "test-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c, &last
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestExtractImageSendsBase64Block(t *testing.T) {
	reply := "```json\n" + `{
		"restaurant_name": " Le Comptoir ",
		"menu_items": [
			{"name": "Duck confit", "price": 28, "category": "Main"},
			{"name": "", "category": "starter"},
			{"name": "Tarte tatin", "category": "pudding"}
		],
		"wines": [
			{"name": "Morgon", "vintage": "2020", "style": "Red"},
			{"name": "Bandol", "style": "rosé"},
			{"name": "Mystery", "style": "orange", "price": -1}
		]
	}` + "\n```"
	c, last := fakeAnthropic(t, http.StatusOK, reply)

	ext, err := c.ExtractImage(context.Background(), Image{MediaType: "image/png", Data: []byte("png-bytes")})
	require.NoError(t, err)

	require.Len(t, last.Messages, 1)
	blocks := last.Messages[0].Content
	require.Len(t, blocks, 2)
	assert.Equal(t, "image", blocks[0].Type)
	assert.Equal(t, "image/png", blocks[0].Source.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), blocks[0].Source.Data)
	assert.Equal(t, "text", blocks[1].Type)
	assert.NotEmpty(t, last.System)

	assert.Equal(t, "Le Comptoir", ext.RestaurantName)
	require.Len(t, ext.MenuItems, 2)
	assert.Equal(t, domain.CategoryMain, ext.MenuItems[0].Category)
	assert.Equal(t, domain.CategoryOther, ext.MenuItems[1].Category)

	require.Len(t, ext.Wines, 3)
	assert.Equal(t, domain.StyleRed, ext.Wines[0].Style)
	assert.Equal(t, domain.StyleRose, ext.Wines[1].Style)
	assert.Empty(t, ext.Wines[2].Style)
	assert.Zero(t, ext.Wines[2].Price)
}

func TestExtractImageRejectsEmptyImage(t *testing.T) {
	c, _ := fakeAnthropic(t, http.StatusOK, "{}")
	_, err := c.ExtractImage(context.Background(), Image{})
	require.Error(t, err)
}

func TestExtractTextIncludesPageText(t *testing.T) {
	c, last := fakeAnthropic(t, http.StatusOK, `Here you go: {"wines":[{"name":"Chablis"}]}`)

	ext, err := c.ExtractText(context.Background(), "Chablis 1er Cru 2021 ... 64")
	require.NoError(t, err)
	require.Len(t, ext.Wines, 1)
	assert.Empty(t, ext.MenuItems)
	assert.Contains(t, last.Messages[0].Content[0].Text, "Chablis 1er Cru 2021")

	_, err = c.ExtractText(context.Background(), "   ")
	require.Error(t, err)
}

func TestPairDropsUnknownWinesAndClampsScores(t *testing.T) {
	reply := `{"pairings":[
		{"dish":"Duck confit","wine":"morgon","reason":"Bright acidity cuts the fat","score":1.4},
		{"dish":"Tarte tatin","wine":"Sauternes","reason":"Not on the list","score":0.9},
		{"dish":"Oysters","wine":"Chablis","reason":"Mineral","score":-0.2}
	]}`
	c, last := fakeAnthropic(t, http.StatusOK, reply)

	recs, err := c.Pair(context.Background(), PairingRequest{
		Dishes:      []domain.MenuItem{{Name: "Duck confit"}, {Name: "Tarte tatin"}, {Name: "Oysters"}},
		Wines:       []domain.Wine{{Name: "Morgon", Vintage: "2020"}, {Name: "Chablis"}},
		Preferences: "prefers lighter reds",
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "Morgon", recs[0].Wine)
	assert.Equal(t, 1.0, recs[0].Score)
	assert.Equal(t, "Chablis", recs[1].Wine)
	assert.Zero(t, recs[1].Score)

	prompt := last.Messages[0].Content[0].Text
	assert.Contains(t, prompt, "- Duck confit")
	assert.Contains(t, prompt, "- Morgon (2020)")
	assert.Contains(t, prompt, "prefers lighter reds")
}

func TestPairValidatesInput(t *testing.T) {
	c, _ := fakeAnthropic(t, http.StatusOK, "{}")
	_, err := c.Pair(context.Background(), PairingRequest{Wines: []domain.Wine{{Name: "Cava"}}})
	require.Error(t, err)
	_, err = c.Pair(context.Background(), PairingRequest{Dishes: []domain.MenuItem{{Name: "Paella"}}})
	require.Error(t, err)
}

func TestAPIErrorsAreReturned(t *testing.T) {
	c, _ := fakeAnthropic(t, http.StatusServiceUnavailable, "")

	_, err := c.Pair(context.Background(), PairingRequest{
		Dishes: []domain.MenuItem{{Name: "Paella"}},
		Wines:  []domain.Wine{{Name: "Cava"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestUnparseableReplyIsAnError(t *testing.T) {
	c, _ := fakeAnthropic(t, http.StatusOK, "I would suggest a nice Rioja.")
	_, err := c.ExtractText(context.Background(), "Rioja")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse json")
}

func TestCancelledContextStopsRequest(t *testing.T) {
	c, _ := fakeAnthropic(t, http.StatusOK, "{}")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ExtractText(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeJSONToleratesFencesAndProse(t *testing.T) {
	tests := []struct {
		name string
		resp string
	}{
		{"bare", `{"pairings":[]}`},
		{"leading prose", "Here you go: {\"pairings\":[]}"},
		{"trailing prose", "{\"pairings\":[]}\n\nLet me know if you need more."},
		{"fenced with trailing prose", "```json\n{\"pairings\":[]}\n```\nEnjoy!"},
		{"prose around fence", "Sure!\n```json\n{\"pairings\":[]}\n```\nSanté."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Pairings []Recommendation `json:"pairings"`
			}
			require.NoError(t, decodeJSON(tt.resp, &out))
			assert.NotNil(t, out.Pairings)
		})
	}
}

func TestPairAcceptsReplyWithTrailingProse(t *testing.T) {
	reply := "```json\n{\"pairings\":[{\"dish\":\"Oysters\",\"wine\":\"Muscadet\",\"reason\":\"salinity\",\"score\":0.9}]}\n```\nEnjoy your meal!"
	c, _ := fakeAnthropic(t, http.StatusOK, reply)

	recs, err := c.Pair(context.Background(), PairingRequest{
		Dishes: []domain.MenuItem{{Name: "Oysters"}},
		Wines:  []domain.Wine{{Name: "Muscadet"}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Muscadet", recs[0].Wine)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := "Grüner Veltliner Rosé"
	for max := 4; max < len(s); max++ {
		got := truncate(s, max)
		assert.True(t, utf8.ValidString(got), "max=%d gave %q", max, got)
		assert.LessOrEqual(t, len(got), max)
	}
	assert.Equal(t, "short", truncate("short", 10))
}
