// Command simctl is an operator console for a running tradesim
// instance. Read commands hit the public API; mutating commands send
// TRADESIM_ADMIN_KEY as a bearer token.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	c := &client{
		baseURL:  envOrDefault("TRADESIM_API_URL", "http://localhost:8080"),
		adminKey: os.Getenv("TRADESIM_ADMIN_KEY"),
		http:     &http.Client{Timeout: 30 * time.Second},
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "status":
		err = c.status()
	case "settlements":
		err = c.settlements()
	case "settlement":
		err = c.settlement(args)
	case "suppliers":
		err = c.suppliers(args)
	case "economy":
		err = c.economy()
	case "events":
		err = c.events(args)
	case "errors":
		err = c.errors(args)
	case "config":
		err = c.showConfig()
	case "set":
		err = c.setConfig(args)
	case "reset-config":
		err = c.resetConfig()
	case "clear-errors":
		err = c.clearErrors()
	case "snapshot":
		err = c.snapshot()
	case "speed":
		err = c.speed(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: simctl <command> [args]

Read commands:
  status                      world summary
  settlements                 list settlements
  settlement <id>             one settlement in full
  suppliers <id> [resource]   ranked suppliers for a settlement
  economy                     per-resource supply comparison
  events [category]           recent events
  errors [settlement-id]      guard interventions
  config                      current balance parameters

Admin commands (need TRADESIM_ADMIN_KEY):
  set <field=value>...        update balance parameters
  reset-config                restore default parameters
  clear-errors                empty the guard log
  snapshot                    save state now
  speed <multiplier>          set tick speed (0 pauses)

Environment:
  TRADESIM_API_URL    target instance (default http://localhost:8080)
  TRADESIM_ADMIN_KEY  bearer token for admin commands
`)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

type client struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

// getJSON GETs a path and decodes the JSON response into target.
func (c *client) getJSON(path string, target any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// postJSON POSTs a payload with bearer auth and decodes the response
// into target when one is wanted.
func (c *client) postJSON(path string, payload, target any) error {
	if c.adminKey == "" {
		return fmt.Errorf("TRADESIM_ADMIN_KEY is required for admin commands")
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.adminKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *client) status() error {
	var st struct {
		Name        string  `json:"name"`
		RunID       string  `json:"run_id"`
		Seed        int64   `json:"seed"`
		Tick        uint64  `json:"tick"`
		SimTime     string  `json:"sim_time"`
		Speed       float64 `json:"speed"`
		Running     bool    `json:"running"`
		Settlements int     `json:"settlements"`
		Population  int     `json:"population"`
		Buildings   int     `json:"buildings"`
		Critical    int     `json:"critical"`
		Shortage    int     `json:"shortage"`
		Surplus     int     `json:"surplus"`
		GuardErrors int     `json:"guard_errors"`
	}
	if err := c.getJSON("/api/status", &st); err != nil {
		return err
	}

	fmt.Printf("%s  run %s  seed %d\n", st.Name, st.RunID, st.Seed)
	fmt.Printf("tick %d (%s)  speed %.1fx  running=%v\n", st.Tick, st.SimTime, st.Speed, st.Running)
	fmt.Printf("%d settlements, %d villagers, %d buildings\n", st.Settlements, st.Population, st.Buildings)
	fmt.Printf("supply: %d critical, %d shortage, %d surplus  guard errors: %d\n",
		st.Critical, st.Shortage, st.Surplus, st.GuardErrors)
	return nil
}

func (c *client) settlements() error {
	var list []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		X          int    `json:"x"`
		Y          int    `json:"y"`
		Population int    `json:"population"`
		Radius     int    `json:"radius"`
		Trend      string `json:"trend"`
		Buildings  int    `json:"buildings"`
		Storage    struct {
			Food float64 `json:"food"`
			Wood float64 `json:"wood"`
			Ore  float64 `json:"ore"`
		} `json:"storage"`
		Status struct {
			Food string `json:"food"`
			Wood string `json:"wood"`
			Ore  string `json:"ore"`
		} `json:"status"`
	}
	if err := c.getJSON("/api/settlements", &list); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPOS\tPOP\tTREND\tBLDG\tFOOD\tWOOD\tORE\tSTATUS\tID")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%d,%d\t%d\t%s\t%d\t%.0f\t%.0f\t%.0f\t%s/%s/%s\t%s\n",
			s.Name, s.X, s.Y, s.Population, s.Trend, s.Buildings,
			s.Storage.Food, s.Storage.Wood, s.Storage.Ore,
			s.Status.Food, s.Status.Wood, s.Status.Ore, s.ID)
	}
	return w.Flush()
}

func (c *client) settlement(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: simctl settlement <id>")
	}
	var detail json.RawMessage
	if err := c.getJSON("/api/settlements/"+url.PathEscape(args[0]), &detail); err != nil {
		return err
	}
	return printJSON(detail)
}

func (c *client) suppliers(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: simctl suppliers <id> [food|wood|ore]")
	}
	path := "/api/settlements/" + url.PathEscape(args[0]) + "/suppliers"
	if len(args) > 1 {
		path += "?resource=" + url.QueryEscape(args[1])
	}

	var resp struct {
		Settlement string  `json:"settlement"`
		Resource   string  `json:"resource"`
		Range      float64 `json:"range"`
		Suppliers  []struct {
			Name            string  `json:"name"`
			Distance        float64 `json:"distance"`
			AvailableSupply float64 `json:"available_supply"`
			Capacity        float64 `json:"capacity"`
		} `json:"suppliers"`
	}
	if err := c.getJSON(path, &resp); err != nil {
		return err
	}

	if len(resp.Suppliers) == 0 {
		fmt.Printf("no %s suppliers within %.0f tiles of %s\n", resp.Resource, resp.Range, resp.Settlement)
		return nil
	}

	fmt.Printf("%s suppliers for %s (within %.0f tiles):\n", resp.Resource, resp.Settlement, resp.Range)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIST\tAVAILABLE\tCAPACITY")
	for _, s := range resp.Suppliers {
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\n", s.Name, s.Distance, s.AvailableSupply, s.Capacity)
	}
	return w.Flush()
}

type bucketMetric struct {
	Name      string  `json:"name"`
	Net       float64 `json:"net"`
	StockDays float64 `json:"stock_days"`
}

func (c *client) economy() error {
	var resp struct {
		Comparisons []struct {
			Resource string         `json:"resource"`
			Surplus  []bucketMetric `json:"surplus"`
			Balanced []bucketMetric `json:"balanced"`
			Shortage []bucketMetric `json:"shortage"`
			Critical []bucketMetric `json:"critical"`
		} `json:"comparisons"`
	}
	if err := c.getJSON("/api/economy", &resp); err != nil {
		return err
	}

	for _, cmp := range resp.Comparisons {
		fmt.Printf("%s:\n", cmp.Resource)
		printBucket("critical", cmp.Critical)
		printBucket("shortage", cmp.Shortage)
		printBucket("balanced", cmp.Balanced)
		printBucket("surplus", cmp.Surplus)
	}
	return nil
}

func printBucket(label string, ms []bucketMetric) {
	if len(ms) == 0 {
		return
	}
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, fmt.Sprintf("%s (net %+.2f)", m.Name, m.Net))
	}
	fmt.Printf("  %-9s %s\n", label, strings.Join(parts, ", "))
}

func (c *client) events(args []string) error {
	path := "/api/events?limit=50"
	if len(args) > 0 {
		path += "&category=" + url.QueryEscape(args[0])
	}

	var events []struct {
		Tick        uint64 `json:"tick"`
		Description string `json:"description"`
		Category    string `json:"category"`
	}
	if err := c.getJSON(path, &events); err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no events")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.Tick, e.Category, e.Description)
	}
	return w.Flush()
}

func (c *client) errors(args []string) error {
	path := "/api/errors?limit=50"
	if len(args) > 0 {
		path += "&settlement=" + url.QueryEscape(args[0])
	}

	var records []struct {
		SettlementID string  `json:"settlement_id"`
		Kind         string  `json:"kind"`
		Message      string  `json:"message"`
		Time         float64 `json:"time"`
		Recovery     string  `json:"recovery"`
	}
	if err := c.getJSON(path, &records); err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no guard interventions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSETTLEMENT\tKIND\tMESSAGE\tRECOVERY")
	for _, r := range records {
		fmt.Fprintf(w, "%.0f\t%s\t%s\t%s\t%s\n", r.Time, r.SettlementID, r.Kind, r.Message, r.Recovery)
	}
	return w.Flush()
}

func (c *client) showConfig() error {
	var raw json.RawMessage
	if err := c.getJSON("/api/config", &raw); err != nil {
		return err
	}
	return printJSON(raw)
}

func (c *client) setConfig(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: simctl set <field=value>...")
	}

	update := make(map[string]float64, len(args))
	for _, arg := range args {
		field, val, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("bad argument %q, want field=value", arg)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("bad value in %q: %w", arg, err)
		}
		update[field] = f
	}

	var resp struct {
		Result struct {
			Valid  bool `json:"valid"`
			Errors []struct {
				Field     string  `json:"field"`
				Message   string  `json:"message"`
				Value     float64 `json:"value"`
				Suggested float64 `json:"suggested"`
			} `json:"errors"`
			Warnings []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"warnings"`
		} `json:"result"`
		Applied string `json:"applied"`
	}
	if err := c.postJSON("/api/admin/config", update, &resp); err != nil {
		return err
	}

	for _, e := range resp.Result.Errors {
		fmt.Printf("clamped %s: %s (sent %g, using %g)\n", e.Field, e.Message, e.Value, e.Suggested)
	}
	for _, w := range resp.Result.Warnings {
		fmt.Printf("warning %s: %s\n", w.Field, w.Message)
	}
	fmt.Printf("parameters queued, applied %s\n", resp.Applied)
	return nil
}

func (c *client) resetConfig() error {
	if err := c.postJSON("/api/admin/config/reset", nil, nil); err != nil {
		return err
	}
	fmt.Println("parameters reset to defaults, applied next tick")
	return nil
}

func (c *client) clearErrors() error {
	if err := c.postJSON("/api/admin/errors/clear", nil, nil); err != nil {
		return err
	}
	fmt.Println("guard log cleared")
	return nil
}

func (c *client) snapshot() error {
	var resp struct {
		Tick    uint64 `json:"tick"`
		Message string `json:"message"`
		Archive string `json:"archive"`
	}
	if err := c.postJSON("/api/admin/snapshot", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("%s at tick %d\n", resp.Message, resp.Tick)
	if resp.Archive != "" {
		fmt.Printf("archive: %s\n", resp.Archive)
	}
	return nil
}

func (c *client) speed(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: simctl speed <multiplier>")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("bad speed %q: %w", args[0], err)
	}

	var resp struct {
		Speed float64 `json:"speed"`
	}
	if err := c.postJSON("/api/admin/speed", map[string]float64{"speed": v}, &resp); err != nil {
		return err
	}
	if resp.Speed == 0 {
		fmt.Println("simulation paused")
	} else {
		fmt.Printf("speed set to %.1fx\n", resp.Speed)
	}
	return nil
}

func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}
