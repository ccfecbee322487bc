package images

import "context"

// Pager walks the latest-photos listing page by page. The API reports no totals, so the
// pager is exhausted only once a page comes back shorter than requested or empty.
type Pager struct {
	source   Source
	perPage  int
	nextPage int
	done     bool
}

// NewPager starts at startPage (page 1 when below one). perPage values below one use
// DefaultPageSize.
func NewPager(source Source, startPage, perPage int) *Pager {
	if startPage < 1 {
		startPage = 1
	}
	if perPage < 1 {
		perPage = DefaultPageSize
	}
	return &Pager{source: source, perPage: perPage, nextPage: startPage}
}

// Next fetches the next page. After exhaustion it returns an empty slice without calling
// the source. A failed fetch does not advance the page number.
func (p *Pager) Next(ctx context.Context) ([]Image, error) {
	if p.done {
		return []Image{}, nil
	}
	page, err := p.source.FetchPage(ctx, p.nextPage, p.perPage)
	if err != nil {
		return nil, err
	}
	p.nextPage++
	if len(page) < p.perPage {
		p.done = true
	}
	return page, nil
}

// Done reports whether the last fetched page was short or empty.
func (p *Pager) Done() bool {
	return p.done
}

// NextPage is the page number the next call to Next requests.
func (p *Pager) NextPage() int {
	return p.nextPage
}
