package etl

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

func linkResponse(url string, links ...string) *Response {
	h := http.Header{}
	for _, l := range links {
		h.Add("Link", l)
	}
	return &Response{URL: url, StatusCode: http.StatusOK, Headers: h}
}

func TestHeaderLinkPaginator(t *testing.T) {
	p := &HeaderLinkPaginator{}

	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			name: "absolute next",
			resp: linkResponse("https://api.test/v1/orders?page=1",
				`<https://api.test/v1/orders?page=2>; rel="next", <https://api.test/v1/orders?page=9>; rel="last"`),
			want: "https://api.test/v1/orders?page=2",
		},
		{
			name: "relative next",
			resp: linkResponse("https://api.test/v1/orders?page=2", `</v1/orders?page=3>; rel="next"`),
			want: "https://api.test/v1/orders?page=3",
		},
		{
			name: "split headers",
			resp: linkResponse("https://api.test/v1/orders",
				`<https://api.test/v1/orders?page=1>; rel="prev"`,
				`<https://api.test/v1/orders?page=3>; rel="next"`),
			want: "https://api.test/v1/orders?page=3",
		},
		{
			name: "last page",
			resp: linkResponse("https://api.test/v1/orders?page=9", `<https://api.test/v1/orders?page=8>; rel="prev"`),
			want: "",
		},
		{
			name: "no header",
			resp: linkResponse("https://api.test/v1/orders"),
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := p.NextPage(tt.resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestHeaderLinkPaginatorCustomRel(t *testing.T) {
	p := &HeaderLinkPaginator{Rel: "following"}
	next, err := p.NextPage(linkResponse("https://api.test/x",
		`<https://api.test/x?page=2>; rel="next", <https://api.test/x?c=abc>; rel="following"`))
	require.NoError(t, err)
	assert.Equal(t, "https://api.test/x?c=abc", next)
}

func TestNewPaginator(t *testing.T) {
	p, err := NewPaginator(models.PaginatorConfig{Type: models.HeaderLink}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HeaderLinkPaginator{}, p)

	p, err = NewPaginator(models.PaginatorConfig{Type: models.HeaderLink},
		&models.PaginatorConfig{Type: models.SinglePage})
	require.NoError(t, err)
	assert.IsType(t, SinglePagePaginator{}, p)

	_, err = NewPaginator(models.PaginatorConfig{Type: "cursor"}, nil)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}
