// Package epubtest builds small in-memory EPUB archives for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"
)

// Meta is one Dublin Core element of the package metadata.
type Meta struct {
	Key  string
	Text string
	ID   string
}

// Chapter is one XHTML content document. Body is raw markup placed inside
// <body>.
type Chapter struct {
	Href  string
	Title string
	Body  string
}

// Book describes the archive to build.
type Book struct {
	UniqueIdentifier string
	Meta             []Meta
	Chapters         []Chapter
}

// Build renders b as EPUB bytes with the package document at OEBPS/content.opf.
func Build(b Book) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			panic(err)
		}
	}
	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)

	var meta, manifest, spine strings.Builder
	for _, m := range b.Meta {
		id := ""
		if m.ID != "" {
			id = fmt.Sprintf(` id="%s"`, m.ID)
		}
		fmt.Fprintf(&meta, "    <dc:%s%s>%s</dc:%s>\n", m.Key, id, html.EscapeString(m.Text), m.Key)
	}
	for i, ch := range b.Chapters {
		id := fmt.Sprintf("ch%d", i)
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, ch.Href)
		fmt.Fprintf(&spine, `    <itemref idref="%s"/>`+"\n", id)
		write("OEBPS/"+ch.Href, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>%s</title></head>
<body>%s</body></html>`, html.EscapeString(ch.Title), ch.Body))
	}
	uid := ""
	if b.UniqueIdentifier != "" {
		uid = fmt.Sprintf(` unique-identifier="%s"`, b.UniqueIdentifier)
	}
	write("OEBPS/content.opf", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0"%s>
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
%s  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="css" href="style.css" media-type="text/css"/>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, uid, meta.String(), manifest.String(), spine.String()))
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
