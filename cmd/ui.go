package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/kamusis/assessrec/internal/engine"
	"github.com/kamusis/assessrec/internal/server"
)

const (
	uiAPITimeout   = 15 * time.Second
	uiDefaultCount = 10
	uiMinCount     = 5
)

const (
	uiAnother = "Ask another question"
	uiQuit    = "Quit"
)

var flagUIAPI string

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Interactive recommendation prompt",
	Long: `Ask for a hiring requirement, then show the best matching assessments.

By default the index is queried in-process. With --api the questions are sent
to a running 'assessrec serve' instead.`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().StringVar(&flagUIAPI, "api", "", "Base URL of a running API, e.g. http://127.0.0.1:8000")
	rootCmd.AddCommand(uiCmd)
}

// recommendFunc answers one query with at most k results.
type recommendFunc func(ctx context.Context, query string, k int) ([]engine.Result, error)

func runUI(_ *cobra.Command, _ []string) error {
	var ask recommendFunc
	if flagUIAPI != "" {
		ask = newAPIClient(flagUIAPI, &http.Client{Timeout: uiAPITimeout}).Recommend
	} else {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		eng, err := a.newEngine()
		if err != nil {
			return err
		}
		ask = eng.Recommend
	}

	styles := newUIStyles()
	fmt.Println(styles.title.Render("Assessment Recommender"))
	fmt.Println(styles.dim.Render("Describe the role you are hiring for. Ctrl+C to exit."))

	for {
		query, count, err := promptQuery()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		results, err := ask(context.Background(), query, count)
		switch {
		case errors.Is(err, errAPIOffline):
			printErr("", fmt.Sprintf("API server is offline at %s. Start it with 'assessrec serve' first.", flagUIAPI))
		case err != nil:
			printErr("", fmt.Sprintf("an error occurred: %v", err))
		default:
			fmt.Print(renderResults(styles, results))
		}

		next := promptui.Select{Label: "Next", Items: []string{uiAnother, uiQuit}}
		_, choice, err := next.Run()
		if err != nil || choice == uiQuit {
			return nil
		}
	}
}

func promptQuery() (string, int, error) {
	qp := promptui.Prompt{
		Label:    "Hiring requirement / job description",
		Validate: validateQuery,
	}
	query, err := qp.Run()
	if err != nil {
		return "", 0, err
	}

	items := make([]string, 0, server.MaxTopK-uiMinCount+1)
	for n := uiMinCount; n <= server.MaxTopK; n++ {
		items = append(items, strconv.Itoa(n))
	}
	sp := promptui.Select{
		Label:     "Number of recommendations",
		Items:     items,
		CursorPos: uiDefaultCount - uiMinCount,
	}
	_, picked, err := sp.Run()
	if err != nil {
		return "", 0, err
	}
	count, err := strconv.Atoi(picked)
	if err != nil {
		return "", 0, err
	}
	return query, count, nil
}

func validateQuery(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("please enter some requirements first")
	}
	return nil
}

type uiStyles struct {
	title lipgloss.Style
	name  lipgloss.Style
	label lipgloss.Style
	dim   lipgloss.Style
	link  lipgloss.Style
}

func newUIStyles() uiStyles {
	primary := lipgloss.Color("#00ff9f")
	dim := lipgloss.Color("#6e7681")
	return uiStyles{
		title: lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1),
		name:  lipgloss.NewStyle().Bold(true),
		label: lipgloss.NewStyle().Bold(true).Foreground(primary),
		dim:   lipgloss.NewStyle().Foreground(dim),
		link:  lipgloss.NewStyle().Underline(true),
	}
}

// matchPercent truncates like int(score*100).
func matchPercent(score float64) int {
	return int(score * 100)
}

// durationText appends unit to numeric durations and leaves labels such as
// "Unknown" as they are.
func durationText(d, unit string) string {
	if _, err := strconv.Atoi(d); err == nil {
		return d + " " + unit
	}
	return d
}

func renderResults(s uiStyles, results []engine.Result) string {
	var b strings.Builder
	if len(results) == 0 {
		b.WriteString(s.dim.Render("No close matches found. Try broadening your query.") + "\n")
		return b.String()
	}
	b.WriteString("\n" + s.title.Render(fmt.Sprintf("Top %d Matches", len(results))) + "\n\n")
	for i, r := range results {
		b.WriteString(s.name.Render(fmt.Sprintf("%d. %s (Match: %d%%)", i+1, r.Name, matchPercent(r.Score))) + "\n")
		b.WriteString("   " + s.label.Render("Type:") + " " + r.Type + " | " + s.label.Render("Duration:") + " " + durationText(r.Duration, "mins") + "\n")
		b.WriteString("   " + s.label.Render("Description:") + " " + r.Description + "\n")
		b.WriteString("   " + s.link.Render(r.URL) + "\n\n")
	}
	return b.String()
}

var errAPIOffline = errors.New("api server offline")

// apiClient calls POST /recommend on a running server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, client *http.Client) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: client}
}

func (c *apiClient) Recommend(ctx context.Context, query string, k int) ([]engine.Result, error) {
	body, err := json.Marshal(server.RecommendRequest{Query: query, TopK: &k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/recommend", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isConnRefused(err) {
			return nil, fmt.Errorf("%w: %v", errAPIOffline, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Detail == "" {
			e.Detail = resp.Status
		}
		return nil, fmt.Errorf("api returned %d: %s", resp.StatusCode, e.Detail)
	}
	var out server.RecommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cannot decode api response: %w", err)
	}
	return out.Recommendations, nil
}

func isConnRefused(err error) bool {
	var uerr *url.Error
	if !errors.As(err, &uerr) || uerr.Timeout() {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
