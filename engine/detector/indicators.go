package detector

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	resultLocator = "submission-result"
	submitLocator = "console-submit-button"
)

var successIcons = []string{"circle-check", "check-circle", "success-icon"}

// HasSuccessIndicator is the loose first pass. Generic "success" classes make
// it noisy, so a hit only means the strict check is worth running.
func HasSuccessIndicator(p *Page) bool {
	marked := p.has(func(n *html.Node) bool {
		if loc, _ := attr(n, "data-e2e-locator"); loc == resultLocator {
			return true
		}
		class := classList(n)
		if strings.Contains(class, "success") || strings.Contains(class, "accepted") {
			return true
		}
		return isSuccessIcon(n)
	})
	if marked {
		return true
	}
	for _, n := range p.deepest(mentionsRuntime) {
		if !hidden(n) {
			return true
		}
	}
	return false
}

func mentionsRuntime(n *html.Node) bool {
	text := textContent(n)
	return strings.Contains(text, "Accepted") &&
		(strings.Contains(text, "Runtime") || strings.Contains(text, "runtime"))
}

func isSuccessIcon(n *html.Node) bool {
	icon, _ := attr(n, "data-icon")
	class := classList(n)
	for _, name := range successIcons {
		if icon == name || strings.Contains(class, name) {
			return true
		}
	}
	return false
}

// IsAccepted is the strict pass: some element reads exactly "Accepted", or
// mentions both "Accepted" and "Runtime".
func IsAccepted(p *Page) bool {
	return p.has(func(n *html.Node) bool {
		text := strings.TrimSpace(textContent(n))
		if text == "Accepted" {
			return true
		}
		return strings.Contains(text, "Accepted") && strings.Contains(text, "Runtime")
	})
}

// IsSubmitClick recognizes the judge's submit button from a click target.
func IsSubmitClick(text, locator string) bool {
	if locator == submitLocator {
		return true
	}
	return strings.Contains(text, "Submit") || strings.Contains(text, "提交")
}
