package pdfrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/drummonds/docpreview/engine/preview"
)

// PageInfo describes one page without rasterizing it
type PageInfo struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	// HasText is false for scanned pages that carry only images.
	HasText bool `json:"hasText"`
}

// Info is the structural summary of a document
type Info struct {
	Title     string     `json:"title,omitempty"`
	PageCount int        `json:"pageCount"`
	Pages     []PageInfo `json:"pages"`
}

// Inspect reads the page tree of data with the pure Go parser. It is used to
// describe uploads cheaply; rendering still goes through an Engine.
func Inspect(data []byte) (info *Info, err error) {
	// the parser panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = fmt.Errorf("%w: %v", preview.ErrMalformedDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, fmt.Errorf("%w: %v", preview.ErrPasswordProtected, err)
		}
		return nil, fmt.Errorf("%w: %v", preview.ErrMalformedDocument, err)
	}

	info = &Info{
		Title:     strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text()),
		PageCount: reader.NumPage(),
	}
	for i := 1; i <= info.PageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		width, height := mediaBox(page.V)
		text, _ := page.GetPlainText(nil)
		info.Pages = append(info.Pages, PageInfo{
			Number:  i,
			Width:   width,
			Height:  height,
			HasText: strings.TrimSpace(text) != "",
		})
	}
	return info, nil
}

// mediaBox returns the page size in points, walking up the page tree for an
// inherited box and falling back to US Letter.
func mediaBox(page pdf.Value) (float64, float64) {
	for node := page; !node.IsNull(); node = node.Key("Parent") {
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			width := box.Index(2).Float64() - box.Index(0).Float64()
			height := box.Index(3).Float64() - box.Index(1).Float64()
			if width < 0 {
				width = -width
			}
			if height < 0 {
				height = -height
			}
			return width, height
		}
	}
	return 612, 792
}
