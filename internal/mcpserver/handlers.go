package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RiskClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RiskClient) *Handlers {
	return &Handlers{client: client}
}

// HandleAssessAccount runs a fresh assessment and summarizes the result.
func (h *Handlers) HandleAssessAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}
	updateOnLedger := req.GetBool("update_on_ledger", false)

	raw, err := h.client.AssessAccount(ctx, account, updateOnLedger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Assessment failed: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetRecommendations returns risk-reduction recommendations.
func (h *Handlers) HandleGetRecommendations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}

	raw, err := h.client.GetRecommendations(ctx, account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get recommendations: %v", err)), nil
	}

	text, err := formatRecommendations(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse recommendations: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetAssessmentHistory lists stored assessments, newest first.
func (h *Handlers) HandleGetAssessmentHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}
	limit := req.GetInt("limit", 0)

	raw, err := h.client.GetAssessmentHistory(ctx, account, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get history: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleMonitorStatus reports the monitor state and watch list.
func (h *Handlers) HandleMonitorStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetMonitorStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get monitor status: %v", err)), nil
	}

	text, err := formatMonitorStatus(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse monitor status: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleTrackAccount adds an account to the monitor watch list.
func (h *Handlers) HandleTrackAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}

	if _, err := h.client.TrackAccount(ctx, account); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to track account: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Now tracking %s. The monitor will re-assess it on every poll and raise alerts on notable score changes.",
		account)), nil
}

// HandleListAlerts lists monitor alerts.
func (h *Handlers) HandleListAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	limit := req.GetInt("limit", 0)

	raw, err := h.client.ListAlerts(ctx, account, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	text, err := formatAlerts(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCacheStats reports per-cache hit/miss statistics.
func (h *Handlers) HandleCacheStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetCacheStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get cache stats: %v", err)), nil
	}

	text, err := formatCacheStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse cache stats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Response formatting ---

type assessmentView struct {
	ID         string  `json:"id"`
	Account    string  `json:"account"`
	Score      int     `json:"score"`
	Confidence float64 `json:"confidence"`
	Factors    []struct {
		Name       string  `json:"name"`
		Importance float64 `json:"importance"`
	} `json:"factors"`
	Recommendations []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Impact      string `json:"impact"`
	} `json:"recommendations"`
	Stage               string    `json:"stage"`
	ModelVersion        string    `json:"modelVersion"`
	UsedSecondaryLedger bool      `json:"usedSecondaryLedger"`
	UsedOracle          bool      `json:"usedOracle"`
	WriteBackTx         string    `json:"writeBackTx"`
	CreatedAt           time.Time `json:"createdAt"`
}

func riskLabel(score int) string {
	switch {
	case score >= 70:
		return "high risk"
	case score >= 40:
		return "medium risk"
	default:
		return "low risk"
	}
}

func formatAssessment(raw json.RawMessage) (string, error) {
	var resp struct {
		Assessment assessmentView `json:"assessment"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	a := resp.Assessment

	var sb strings.Builder
	fmt.Fprintf(&sb, "Account: %s\n", a.Account)
	fmt.Fprintf(&sb, "Risk score: %d/100 (%s)\n", a.Score, riskLabel(a.Score))
	fmt.Fprintf(&sb, "Confidence: %.0f%%\n", a.Confidence*100)
	fmt.Fprintf(&sb, "Scored by: %s (%s)\n", a.Stage, a.ModelVersion)

	sources := []string{"primary ledger"}
	if a.UsedSecondaryLedger {
		sources = append(sources, "secondary records")
	}
	if a.UsedOracle {
		sources = append(sources, "oracle feeds")
	}
	fmt.Fprintf(&sb, "Data sources: %s\n", strings.Join(sources, ", "))

	if a.WriteBackTx != "" {
		fmt.Fprintf(&sb, "On-ledger update: %s\n", a.WriteBackTx)
	}

	if len(a.Factors) > 0 {
		sb.WriteString("\nContributing factors:\n")
		for _, f := range a.Factors {
			fmt.Fprintf(&sb, "  - %s (importance %.2f)\n", f.Name, f.Importance)
		}
	}

	if len(a.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&sb, "  - [%s] %s: %s\n", r.Impact, r.Title, r.Description)
		}
	}

	return sb.String(), nil
}

func formatRecommendations(raw json.RawMessage) (string, error) {
	var resp struct {
		Account         string `json:"account"`
		Recommendations []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Impact      string `json:"impact"`
		} `json:"recommendations"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Recommendations) == 0 {
		return fmt.Sprintf("No recommendations for %s. The account's risk profile looks settled.", resp.Account), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recommendations for %s:\n\n", resp.Account)
	for i, r := range resp.Recommendations {
		fmt.Fprintf(&sb, "%d. %s (impact: %s)\n   %s\n", i+1, r.Title, r.Impact, r.Description)
	}
	return sb.String(), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		Account     string           `json:"account"`
		Assessments []assessmentView `json:"assessments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Assessments) == 0 {
		return fmt.Sprintf("No stored assessments for %s yet. Use assess_account to create one.", resp.Account), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Assessment history for %s (%d entries, newest first):\n\n", resp.Account, len(resp.Assessments))
	for _, a := range resp.Assessments {
		fmt.Fprintf(&sb, "%s  score %3d  confidence %.2f  stage %s",
			a.CreatedAt.Format("2006-01-02 15:04"), a.Score, a.Confidence, a.Stage)
		if a.WriteBackTx != "" {
			sb.WriteString("  (written on-ledger)")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatMonitorStatus(raw json.RawMessage) (string, error) {
	var resp struct {
		Running  bool   `json:"running"`
		Interval string `json:"interval"`
		Tracked  []struct {
			Account     string    `json:"account"`
			LastScore   int       `json:"lastScore"`
			LastChecked time.Time `json:"lastChecked"`
		} `json:"tracked"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	if resp.Running {
		fmt.Fprintf(&sb, "Monitor is running (poll interval %s).\n", resp.Interval)
	} else {
		sb.WriteString("Monitor is stopped.\n")
	}

	if len(resp.Tracked) == 0 {
		sb.WriteString("No accounts are being tracked.")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "\nTracked accounts (%d):\n", len(resp.Tracked))
	for _, t := range resp.Tracked {
		fmt.Fprintf(&sb, "  %s  last score %d", t.Account, t.LastScore)
		if !t.LastChecked.IsZero() {
			fmt.Fprintf(&sb, "  checked %s", t.LastChecked.Format("2006-01-02 15:04"))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatAlerts(raw json.RawMessage) (string, error) {
	var resp struct {
		Alerts []struct {
			ID           string    `json:"id"`
			Account      string    `json:"account"`
			Severity     string    `json:"severity"`
			OldScore     int       `json:"oldScore"`
			NewScore     int       `json:"newScore"`
			Delta        int       `json:"delta"`
			Acknowledged bool      `json:"acknowledged"`
			CreatedAt    time.Time `json:"createdAt"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Alerts) == 0 {
		return "No alerts.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Alerts (%d, newest first):\n\n", len(resp.Alerts))
	for _, a := range resp.Alerts {
		ack := ""
		if a.Acknowledged {
			ack = "  [acknowledged]"
		}
		fmt.Fprintf(&sb, "%s  %s  %s  score %d -> %d (delta %d)%s\n",
			a.CreatedAt.Format("2006-01-02 15:04"), a.Severity, a.Account,
			a.OldScore, a.NewScore, a.Delta, ack)
	}
	return sb.String(), nil
}

func formatCacheStats(raw json.RawMessage) (string, error) {
	var resp struct {
		Caches map[string]struct {
			Hits    int64   `json:"hits"`
			Misses  int64   `json:"misses"`
			Size    int     `json:"size"`
			HitRate float64 `json:"hitRate"`
		} `json:"caches"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Caches) == 0 {
		return "No caches reported.", nil
	}

	names := make([]string, 0, len(resp.Caches))
	for name := range resp.Caches {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Cache statistics:\n\n")
	for _, name := range names {
		s := resp.Caches[name]
		fmt.Fprintf(&sb, "%-16s entries %-5d hits %-6d misses %-6d hit rate %.1f%%\n",
			name, s.Size, s.Hits, s.Misses, s.HitRate*100)
	}
	return sb.String(), nil
}
