package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type badgeState struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

type lastSolution struct {
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

type popupStatus struct {
	ApiUrl       string        `json:"apiUrl"`
	LoggedIn     bool          `json:"loggedIn"`
	User         string        `json:"user"`
	Error        string        `json:"error"`
	TokenExpires *time.Time    `json:"tokenExpires"`
	Badge        badgeState    `json:"badge"`
	LastSolution *lastSolution `json:"lastSolution"`
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5576c"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#d32f2f"))
	codeStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("241")).Padding(0, 1)
	boxStyle   = lipgloss.NewStyle().Padding(1, 2)
)

func badgeView(b badgeState) string {
	if b.Text == "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("(no badge)")
	}
	return lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Foreground(lipgloss.Color("#ffffff")).
		Background(lipgloss.Color(b.Color)).
		Render(b.Text)
}

func renderStatus(s popupStatus, now time.Time) string {
	rows := []string{titleStyle.Render("Terriyaki"), ""}
	row := func(label, value string) {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value))
	}

	row("backend", s.ApiUrl)
	switch {
	case s.LoggedIn:
		row("account", s.User)
	case s.Error != "":
		row("account", errStyle.Render(s.Error))
	default:
		row("account", errStyle.Render("not logged in"))
	}
	if s.TokenExpires != nil {
		row("token", "expires in "+s.TokenExpires.Sub(now).Round(time.Minute).String())
	}
	row("badge", badgeView(s.Badge))

	if s.LastSolution != nil {
		ago := now.Sub(s.LastSolution.Timestamp).Round(time.Second)
		row("solution", fmt.Sprintf("%s, detected %s ago", s.LastSolution.Language, ago))
		rows = append(rows, codeStyle.Render(preview(s.LastSolution.Code, 8)))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// preview keeps the first n lines of code.
func preview(code string, n int) string {
	lines := strings.Split(code, "\n")
	if len(lines) <= n {
		return code
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	cmd := flag.String("cmd", "status", "status, submit, refresh or login")
	daemon := flag.String("daemon", "http://127.0.0.1:8765", "Address of the terriyaki daemon")
	token := flag.String("token", "", "Auth token for login")
	apiURL := flag.String("api-url", "", "Backend url for login")
	codeFile := flag.String("code-file", "", "Submit this file instead of the last detected solution")
	language := flag.String("language", "", "Language of -code-file")
	flag.Parse()

	c := &client{base: strings.TrimRight(*daemon, "/"), http: &http.Client{Timeout: 15 * time.Second}}
	log.SetFlags(0)

	switch *cmd {
	case "status":
		// shown below
	case "refresh":
		if err := c.call(http.MethodPost, "/api/messages", map[string]string{"action": "updateBadge"}, nil); err != nil {
			log.Fatalln(errStyle.Render(err.Error()))
		}
	case "login":
		settings := map[string]string{}
		if *token != "" {
			settings["authToken"] = *token
		}
		if *apiURL != "" {
			settings["apiUrl"] = *apiURL
		}
		if len(settings) == 0 {
			log.Fatalln("login needs -token and/or -api-url")
		}
		if err := c.call(http.MethodPut, "/api/settings", settings, nil); err != nil {
			log.Fatalln(errStyle.Render(err.Error()))
		}
		// give the daemon's watcher time to settle and refresh
		time.Sleep(500 * time.Millisecond)
	case "submit":
		var req any
		if *codeFile != "" {
			code, err := os.ReadFile(*codeFile)
			if err != nil {
				log.Fatalln(errStyle.Render(err.Error()))
			}
			req = map[string]string{"code": string(code), "language": *language}
		}
		var resp struct {
			Badge badgeState `json:"badge"`
		}
		if err := c.call(http.MethodPost, "/api/popup/submit", req, &resp); err != nil {
			log.Fatalln(errStyle.Render(err.Error()))
		}
		fmt.Println(titleStyle.Render("Task submitted"), badgeView(resp.Badge))
		return
	default:
		log.Fatalf("unknown command %q", *cmd)
	}

	var status popupStatus
	if err := c.call(http.MethodGet, "/api/popup/status", nil, &status); err != nil {
		log.Fatalln(errStyle.Render(err.Error()))
	}
	fmt.Println(renderStatus(status, time.Now()))
}
