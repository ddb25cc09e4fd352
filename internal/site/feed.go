// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package site

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gorilla/feeds"
)

// buildFeed writes an Atom feed of pages, newest first. All dates come from
// the sources, so an unchanged site produces the same feed.
func (b *buildContext) buildFeed(pages []*Page) error {
	root := *b.c.BaseURL
	root.Path = path.Join("/", root.Path)
	if !strings.HasSuffix(root.Path, "/") {
		root.Path += "/"
	}

	feed := &feeds.Feed{
		Title:   b.c.Title,
		Link:    &feeds.Link{Href: root.String()},
		Author:  &feeds.Author{Name: b.c.Author},
		Created: b.c.feedCreated,
	}

	sorted := slices.Clone(pages)
	slices.SortStableFunc(sorted, func(x, y *Page) int {
		return y.Updated.Compare(x.Updated)
	})

	for _, p := range sorted {
		if b.c.feedCreated.IsZero() && p.Updated.After(feed.Created) {
			feed.Created = p.Updated
		}

		pu := *b.c.BaseURL
		pu.Path = path.Join("/", pu.Path, p.DstName())

		feed.Items = append(feed.Items, &feeds.Item{
			Id:      pu.String(),
			Title:   p.Title,
			Link:    &feeds.Link{Href: pu.String()},
			Author:  feed.Author,
			Content: string(p.contents),
			Created: p.Updated,
			Updated: p.Updated,
		})
	}

	bf, err := feed.ToAtom()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.c.Dst, "feed.xml"), []byte(bf), 0o644)
}
