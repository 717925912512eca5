package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webGroupResponse = `{"data":{"listWebGroupProducts":{"productAssortment":[
  {"productId":98213,"normalPrice":1.09,"offerPrice":0,"productOffer":null,
   "productInformation":{"headerText":"Halfvolle melk","packaging":"1 l","brand":"1 de Beste",
     "image":"https://img.example/melk.png","department":"Zuivel","webgroup":"Melk"}},
  {"productId":"10455","normalPrice":2.49,"offerPrice":1.99,
   "productOffer":{"textPriceSign":" 2e halve prijs ","startDate":"2026-05-04","endDate":"2026-05-10"},
   "productInformation":{"headerText":"Pindakaas","packaging":"350 g","department":"Ontbijt"}},
  null
]}}}`

func TestWebGroupProducts_FetchGroup(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		query = req.Query
		_, _ = w.Write([]byte(webGroupResponse))
	}))
	defer srv.Close()

	groups := NewWebGroupProducts(NewClient(srv.URL, ClientOptions{}), WebGroupConfig{
		Query:   "query { listWebGroupProducts(webGroupId: %d) { productAssortment(storeId: %d) { productId } } }",
		StoreID: 66,
	})

	nodes, err := groups.FetchGroup(context.Background(), 17)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Contains(t, query, "webGroupId: 17")
	assert.Contains(t, query, "storeId: 66")

	first := nodes[0].(Item)
	assert.Equal(t, "98213", first[KeyID])
	assert.Equal(t, "Halfvolle melk", first[KeyTitle])
	assert.Equal(t, "1.09", first[KeyPrice])
	assert.Empty(t, first[KeyPromoPrice])
	assert.Empty(t, first[KeyWasPrice])
	assert.Equal(t, "Melk", first[KeyCategory])
	assert.Equal(t, "Zuivel", first[KeyDepartment])

	second := nodes[1].(Item)
	assert.Equal(t, "10455", second[KeyID])
	assert.Equal(t, "1.99", second[KeyPromoPrice])
	assert.Equal(t, "2.49", second[KeyWasPrice])
	assert.Equal(t, "2e halve prijs", second[KeyPromoLabel])
	assert.Equal(t, "2026-05-10", second[KeyPromoUntil])
	assert.Empty(t, second[KeyCategory])
}

func TestWebGroupProducts_EmptyGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"listWebGroupProducts":null}}`))
	}))
	defer srv.Close()

	groups := NewWebGroupProducts(NewClient(srv.URL, ClientOptions{}), WebGroupConfig{Query: "%d %d"})
	nodes, err := groups.FetchGroup(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestWebGroupProducts_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	groups := NewWebGroupProducts(NewClient(srv.URL, ClientOptions{}), WebGroupConfig{Query: "%d %d"})
	_, err := groups.FetchGroup(context.Background(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "web group 3")
}
