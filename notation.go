package scoresync

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
	"unicode"

	"github.com/Masterminds/sprig"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is a complete ABC notation document: the header block generated
// from ScoreSettings followed by the note body. Token identifies the body
// only, so two documents that differ only in their headers share a Token.
type Document struct {
	Text  string
	Body  string
	Token string
}

// SilentMeasure is used as the body when the user has not entered any notes.
const SilentMeasure = "z4 |]"

const tokenLength = 16

var headerTemplate = template.Must(template.New("header").Funcs(sprig.TxtFuncMap()).Parse(
	`X:1
T:{{ .Title | replace "\n" " " }}
M:{{ .TimeSignature.Numerator }}/{{ .TimeSignature.Denominator }}
L:1/8
Q:1/4={{ .Tempo }}
K:{{ .NotatedKey }}
`))

// Assemble builds the document for the given settings and body. Missing
// settings fall back to their defaults and an empty body is replaced with
// SilentMeasure.
func Assemble(settings ScoreSettings, body string) Document {
	settings = settings.WithDefaults()
	if body == "" {
		body = SilentMeasure
	}
	var b strings.Builder
	if err := headerTemplate.Execute(&b, settings); err != nil {
		// the template only reads plain fields, this cannot happen
		panic(fmt.Sprintf("scoresync: executing header template: %v", err))
	}
	b.WriteString(body)
	return Document{Text: b.String(), Body: body, Token: IdentityToken(body)}
}

// IdentityToken returns a short, stable token derived from the note body. An
// empty body gets the token of SilentMeasure.
func IdentityToken(body string) string {
	if body == "" {
		body = SilentMeasure
	}
	sum := sha256.Sum256([]byte(body))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:tokenLength]
}

// WriteTo writes the document text, implementing io.WriterTo.
func (d Document) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, d.Text)
	return int64(n), err
}

var separatorRun = regexp.MustCompile(`[\s/\\]+`)

// DownloadName returns the file name a document with the given title should
// be saved as: accents are folded, runs of whitespace and path separators
// become underscores and the .abc extension is appended. The result never
// names a path outside the current directory.
func DownloadName(title string) string {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	return separatorRun.ReplaceAllString(folded, "_") + ".abc"
}

// FirstTuneBody extracts the body of the first tune of a (possibly
// multi-tune) ABC text. Tunes are separated by blank lines; the X: reference
// line of the first tune is dropped and the rest of it is returned.
func FirstTuneBody(abc string) string {
	abc = strings.ReplaceAll(abc, "\r\n", "\n")
	first, _, _ := strings.Cut(strings.TrimLeft(abc, "\n"), "\n\n")
	lines := strings.Split(first, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "X:") {
		lines = lines[1:]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
