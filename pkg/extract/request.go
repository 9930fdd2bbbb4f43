package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ajitpratap0/shopsync/pkg/clients"
)

// PageToken carries the parameters that select the next page. It is read
// from one response and consumed by the following request.
type PageToken struct {
	Params url.Values
}

// RequestBuilder renders REST query parameters. The first request carries
// ordering, the filter boundary and the descriptor's first-request
// parameters; follow-up requests carry only the page size and the token,
// which the API requires.
type RequestBuilder struct {
	Desc     *Descriptor
	PageSize int
	// Filter is the boundary sent as Desc.FilterField; nil sends none.
	Filter any
}

// Params returns the parameters of the request following token, or of the
// first request when token is nil.
func (b RequestBuilder) Params(token *PageToken) url.Values {
	params := url.Values{}
	if b.PageSize > 0 {
		params.Set("limit", strconv.Itoa(b.PageSize))
	}

	if token != nil {
		for k, v := range token.Params {
			params[k] = append([]string(nil), v...)
		}
		return params
	}

	if b.Desc.OrderField != "" {
		params.Set("order", b.Desc.OrderField+" asc")
	}
	if b.Desc.FilterField != "" && b.Filter != nil {
		params.Set(b.Desc.FilterField, FormatCursor(b.Filter))
	}
	for k, v := range b.Desc.FirstRequestParams {
		params[k] = append([]string(nil), v...)
	}
	return params
}

// NextPageToken returns the token of the page after resp, or nil on the
// last page.
func NextPageToken(desc *Descriptor, resp *clients.Response) *PageToken {
	if desc.NextPageField != "" {
		v := gjson.GetBytes(resp.Body, desc.NextPageField)
		if !v.Exists() || v.Type == gjson.Null || v.String() == "" {
			return nil
		}
		param := desc.NextPageParam
		if param == "" {
			param = desc.NextPageField[strings.LastIndex(desc.NextPageField, ".")+1:]
		}
		return &PageToken{Params: url.Values{param: {v.String()}}}
	}

	next, ok := linkNext(resp.Header.Get("Link"))
	if !ok {
		return nil
	}
	pageInfo := next.Get("page_info")
	if pageInfo == "" {
		return nil
	}
	return &PageToken{Params: url.Values{"page_info": {pageInfo}}}
}

// linkNext returns the query of the rel="next" target of a Link header.
func linkNext(header string) (url.Values, bool) {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, attr := range segments[1:] {
			attr = strings.TrimSpace(attr)
			if attr == `rel="next"` || attr == "rel=next" {
				isNext = true
			}
		}
		if !isNext {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		u, err := url.Parse(target)
		if err != nil {
			return nil, false
		}
		return u.Query(), true
	}
	return nil, false
}
