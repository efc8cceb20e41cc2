package detector

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"terriyaki/engine/bridge"
)

const (
	DefaultLanguage = "javascript"

	minCodeLength = 10
)

var Languages = []string{
	"javascript", "typescript", "python", "java", "cpp", "c", "csharp",
	"go", "rust", "ruby", "swift", "kotlin", "scala", "php",
}

// editor language ids to submission languages
var editorLanguages = map[string]string{
	"javascript": "javascript",
	"typescript": "typescript",
	"python":     "python",
	"python3":    "python",
	"java":       "java",
	"cpp":        "cpp",
	"c":          "c",
	"csharp":     "csharp",
	"go":         "go",
	"golang":     "go",
	"rust":       "rust",
	"ruby":       "ruby",
	"swift":      "swift",
	"kotlin":     "kotlin",
	"scala":      "scala",
	"php":        "php",
}

// label keywords, longest first so "javascript" is not read as "java"
var labelKeywords = []struct {
	keyword  string
	language string
}{
	{"javascript", "javascript"},
	{"typescript", "typescript"},
	{"python", "python"},
	{"csharp", "csharp"},
	{"golang", "go"},
	{"kotlin", "kotlin"},
	{"scala", "scala"},
	{"swift", "swift"},
	{"java", "java"},
	{"rust", "rust"},
	{"ruby", "ruby"},
	{"c++", "cpp"},
	{"cpp", "cpp"},
	{"php", "php"},
	{"c#", "csharp"},
	{"go", "go"},
	{"js", "javascript"},
	{"ts", "typescript"},
	{"py", "python"},
}

type Solution struct {
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Solution) Message() bridge.Message {
	return bridge.Message{
		Action:    bridge.SolutionDetected,
		Code:      s.Code,
		Language:  s.Language,
		Timestamp: s.Timestamp.UnixMilli(),
	}
}

func EditorLanguage(id string) string {
	if lang, ok := editorLanguages[strings.ToLower(strings.TrimSpace(id))]; ok {
		return lang
	}
	return DefaultLanguage
}

// LabelLanguage matches a displayed language label against the keyword list.
func LabelLanguage(label string) (string, bool) {
	label = strings.ToLower(label)
	for _, k := range labelKeywords {
		if strings.Contains(label, k.keyword) {
			return k.language, true
		}
	}
	return "", false
}

// ExtractCode reads the submitted code, preferring the editor model, then a
// textarea, then a contenteditable surface. A language label on the page
// overrides the editor's id when it names a known language. Nil means no
// usable code.
func ExtractCode(p *Page, editor *bridge.Editor) *Solution {
	var code string
	language := DefaultLanguage

	switch {
	case editor != nil && editor.Value != "":
		code = editor.Value
		language = EditorLanguage(editor.LanguageID)
	default:
		if n := p.find(func(n *html.Node) bool { return n.Data == "textarea" }); n != nil {
			code = textContent(n)
		} else if n := p.find(isContentEditable); n != nil {
			code = textContent(n)
		}
	}

	if label := languageLabel(p); label != "" {
		if lang, ok := LabelLanguage(label); ok {
			language = lang
		}
	}

	code = strings.TrimSpace(code)
	if utf8.RuneCountInString(code) <= minCodeLength {
		return nil
	}
	return &Solution{Code: code, Language: language}
}

func isContentEditable(n *html.Node) bool {
	v, ok := attr(n, "contenteditable")
	return ok && strings.ToLower(v) != "false"
}

// languageLabel finds the displayed language: a select's chosen option, a
// data attribute, or an element with a language class.
func languageLabel(p *Page) string {
	if sel := p.find(func(n *html.Node) bool { return n.Data == "select" }); sel != nil {
		if label := selectedOption(sel); label != "" {
			return label
		}
	}

	var label string
	p.elements(func(n *html.Node) bool {
		for _, key := range []string{"data-language", "data-lang", "data-mode-id"} {
			if v, ok := attr(n, key); ok && v != "" {
				label = v
				return false
			}
		}
		for _, c := range strings.Fields(classList(n)) {
			if strings.HasPrefix(c, "language-") || strings.HasPrefix(c, "lang-") {
				if text := strings.TrimSpace(textContent(n)); text != "" {
					label = text
				} else {
					label = c[strings.Index(c, "-")+1:]
				}
				return false
			}
		}
		return true
	})
	return label
}

func selectedOption(sel *html.Node) string {
	var first string
	var chosen string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			text := strings.TrimSpace(textContent(n))
			if first == "" {
				first = text
			}
			if _, ok := attr(n, "selected"); ok && chosen == "" {
				chosen = text
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	if chosen != "" {
		return chosen
	}
	if v, ok := attr(sel, "value"); ok && v != "" {
		return v
	}
	return first
}
