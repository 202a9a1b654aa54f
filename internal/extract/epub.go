package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// EPUB extracts chapter text, metadata, and the cover image from an EPUB
// file. Chapters follow spine order; PageNumber is the 1-based chapter index.
func EPUB(path string) (*Result, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer zr.Close()
	return readEPUB(&zr.Reader)
}

// EPUBFromReader extracts from an already-open zip reader. Split out so
// tests can build EPUBs in memory.
func EPUBFromReader(zr *zip.Reader) (*Result, error) {
	return readEPUB(zr)
}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Title   string `xml:"title"`
		Creator string `xml:"creator"`
		Metas   []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

func readEPUB(zr *zip.Reader) (*Result, error) {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	containerData, err := readZipFile(files, "META-INF/container.xml")
	if err != nil {
		return nil, fmt.Errorf("missing container.xml: %w", err)
	}

	var container epubContainer
	if err := xml.Unmarshal(containerData, &container); err != nil {
		return nil, fmt.Errorf("failed to parse container.xml: %w", err)
	}
	if len(container.Rootfiles) == 0 {
		return nil, fmt.Errorf("no rootfile in container.xml")
	}

	opfPath := container.Rootfiles[0].FullPath
	opfData, err := readZipFile(files, opfPath)
	if err != nil {
		return nil, fmt.Errorf("missing package document %s: %w", opfPath, err)
	}

	var pkg epubPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package document: %w", err)
	}

	result := &Result{
		Title:  strings.TrimSpace(pkg.Metadata.Title),
		Author: strings.TrimSpace(pkg.Metadata.Creator),
	}

	opfDir := path.Dir(opfPath)
	hrefByID := make(map[string]string, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		hrefByID[item.ID] = item.Href
	}

	// Cover: EPUB3 cover-image property, or the EPUB2 meta name="cover" item.
	coverHref := ""
	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.Properties, "cover-image") {
			coverHref = item.Href
			break
		}
	}
	if coverHref == "" {
		for _, meta := range pkg.Metadata.Metas {
			if meta.Name == "cover" {
				coverHref = hrefByID[meta.Content]
				break
			}
		}
	}
	if coverHref != "" {
		if data, err := readZipFile(files, resolveHref(opfDir, coverHref)); err == nil {
			result.CoverImage = data
		}
	}

	chapterIdx := 0
	for _, ref := range pkg.Spine.ItemRefs {
		href, ok := hrefByID[ref.IDRef]
		if !ok {
			continue
		}
		data, err := readZipFile(files, resolveHref(opfDir, href))
		if err != nil {
			continue
		}
		title, text := parseXHTML(data)
		if strings.TrimSpace(text) == "" {
			continue
		}
		chapterIdx++
		if title == "" {
			title = fmt.Sprintf("Chapter %d", chapterIdx)
		}
		result.Pages = append(result.Pages, Page{
			Text:       text,
			PageNumber: chapterIdx,
			Chapter:    title,
		})
	}

	result.TotalPages = chapterIdx
	return result, nil
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("file not found in archive: %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func resolveHref(opfDir, href string) string {
	if opfDir == "." || opfDir == "" {
		return href
	}
	return path.Join(opfDir, href)
}

// parseXHTML extracts the document title and visible text, inserting blank
// lines at block boundaries so the chunker sees paragraph structure.
func parseXHTML(data []byte) (title, text string) {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return "", ""
	}

	var sb strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inTitle bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "title":
				inTitle = true
			case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote", "br":
				sb.WriteString("\n\n")
			}
		case html.TextNode:
			if inTitle {
				title += n.Data
			} else {
				sb.WriteString(n.Data)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inTitle)
		}
	}
	walk(doc, false)

	return strings.TrimSpace(title), strings.TrimSpace(sb.String())
}
