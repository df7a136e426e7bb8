package arxiv

import "encoding/xml"

// Feed bildet die Atom-Antwort der arXiv-Export-API ab.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []Entry  `xml:"entry"`
}

// Entry ist ein einzelnes Suchergebnis im Atom-Feed.
type Entry struct {
	ID        string   `xml:"id"` // zugleich die kanonische Abstract-URL
	Title     string   `xml:"title"`
	Summary   string   `xml:"summary"`
	Published string   `xml:"published"`
	Authors   []Author `xml:"author"`
}

// Author ist ein Autoreneintrag eines Suchergebnisses.
type Author struct {
	Name string `xml:"name"`
}
