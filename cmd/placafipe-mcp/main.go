package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// errorResponse mirrors the API error body.
type errorResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func main() {
	apiURL := os.Getenv("PLACAFIPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8000"
	}
	apiURL = strings.TrimRight(apiURL, "/")
	// Optional: only needed when the API runs with auth enabled.
	apiKey := os.Getenv("PLACAFIPE_API_KEY")

	s := server.NewMCPServer(
		"placafipe",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	lookupTool := mcp.NewTool("consultar_placa",
		mcp.WithDescription("Look up a Brazilian vehicle plate on placafipe.com. Returns the vehicle attributes, "+
			"the FIPE valuation table and the yearly IPVA history as JSON. Accepts plates with or without "+
			"separators (ABC-1D23, abc1d23)."),
		mcp.WithString("placa",
			mcp.Required(),
			mcp.Description("The vehicle plate to look up"),
		),
	)
	s.AddTool(lookupTool, handleLookup(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleLookup(apiURL, apiKey string) server.ToolHandlerFunc {
	// A cold-start lookup with retries can take well over a minute.
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		plate, err := request.RequireString("placa")
		if err != nil || strings.TrimSpace(plate) == "" {
			return mcp.NewToolResultError("placa is required"), nil
		}

		status, body, err := apiGet(ctx, client, apiURL, apiKey, "/consultar/"+url.PathEscape(plate))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if status != http.StatusOK {
			return mcp.NewToolResultError(formatAPIError(status, body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// apiGet sends a GET request to the lookup API and returns the status and body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// formatAPIError renders an error body as "[CODE] detail", falling back to
// the HTTP status when the body is not the API's error shape.
func formatAPIError(status int, body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
		return fmt.Sprintf("lookup failed with HTTP %d", status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Detail)
}
