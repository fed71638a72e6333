package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/unicode/norm"
)

// ErrNoSutta is returned for pages without a div#sutta container.
var ErrNoSutta = errors.New("no sutta container on page")

// Separator splits a page's introduction from the sutta body.
const Separator = "* * *"

// SuttaPage is the text content of one sutta page.
type SuttaPage struct {
	Title        string
	Introduction string
	Body         string
	Language     string // ISO 639-1, empty when undetected
}

var (
	multiSpace = regexp.MustCompile(` +`)
	multiWS    = regexp.MustCompile(`\s{2,}`)
)

// NormalizeLinkText applies NFKD and collapses runs of spaces.
func NormalizeLinkText(s string) string {
	return multiSpace.ReplaceAllString(norm.NFKD.String(s), " ")
}

func normalizeTitle(s string) string {
	return multiWS.ReplaceAllString(strings.TrimSpace(norm.NFKD.String(s)), " ")
}

// Parser extracts suttas from dhammatalks.org pages.
type Parser struct {
	detector lingua.LanguageDetector
}

// translationLanguages are the languages dhammatalks.org publishes in.
var translationLanguages = []lingua.Language{
	lingua.English,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.Italian,
	lingua.Dutch,
}

// NewParser returns a parser. With detectLanguage the body language is
// tagged on every page.
func NewParser(detectLanguage bool) *Parser {
	p := &Parser{}
	if detectLanguage {
		p.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(translationLanguages...).
			Build()
	}
	return p
}

// ParseSutta reads the div#sutta container of a page. The h1 becomes the
// title, see-also and note blocks are dropped, and the remaining text is
// split on the first separator into introduction and body.
func (p *Parser) ParseSutta(html string) (*SuttaPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return p.ParseDocument(doc)
}

func (p *Parser) ParseDocument(doc *goquery.Document) (*SuttaPage, error) {
	sutta := doc.Find("div#sutta").First()
	if sutta.Length() == 0 {
		return nil, ErrNoSutta
	}

	page := &SuttaPage{}
	if h1 := sutta.Find("h1").First(); h1.Length() > 0 {
		page.Title = normalizeTitle(h1.Text())
		h1.Remove()
	}
	sutta.Find("p.seealso, p.note, div.seealso, div.note").Remove()

	full := strings.TrimSpace(norm.NFKD.String(sutta.Text()))
	if intro, body, ok := strings.Cut(full, Separator); ok {
		page.Introduction = strings.TrimSpace(intro)
		page.Body = strings.TrimSpace(body)
	} else {
		page.Body = full
	}

	if p.detector != nil && page.Body != "" {
		if lang, ok := p.detector.DetectLanguageOf(page.Body); ok {
			page.Language = strings.ToLower(lang.IsoCode639_1().String())
		}
	}
	return page, nil
}
