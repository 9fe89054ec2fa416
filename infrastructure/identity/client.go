package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
)

// ErrNotConfigured is returned when no identity service URL is set
var ErrNotConfigured = errors.New("identity service not configured")

// maxBulkFIDs is the largest batch the bulk endpoint accepts
const maxBulkFIDs = 100

// ClientConfig configures the identity service client
type ClientConfig struct {
	BaseURL string

	// APIKey is sent as x-api-key. Never log this value.
	APIKey string

	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the social identity service over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ interfaces.IdentityProvider = (*Client)(nil)

// NewClient creates an identity service client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

type userResponse struct {
	FID               int64  `json:"fid"`
	Username          string `json:"username"`
	DisplayName       string `json:"display_name"`
	PfpURL            string `json:"pfp_url"`
	VerifiedAddresses struct {
		EthAddresses []string `json:"eth_addresses"`
	} `json:"verified_addresses"`
	CustodyAddress string `json:"custody_address"`
}

func (u userResponse) toProfile() *entities.Profile {
	primary := u.CustodyAddress
	if len(u.VerifiedAddresses.EthAddresses) > 0 {
		primary = u.VerifiedAddresses.EthAddresses[0]
	}
	return &entities.Profile{
		FID:            u.FID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		PfpURL:         u.PfpURL,
		PrimaryAddress: primary,
	}
}

type bulkUsersResponse struct {
	Users []userResponse `json:"users"`
}

// ProfileByFID looks up a single identity. A missing identity is nil, nil.
func (c *Client) ProfileByFID(ctx context.Context, fid int64) (*entities.Profile, error) {
	profiles, err := c.ProfilesByFID(ctx, []int64{fid})
	if err != nil {
		return nil, err
	}
	return profiles[fid], nil
}

// ProfilesByFID looks up identities in batches
func (c *Client) ProfilesByFID(ctx context.Context, fids []int64) (map[int64]*entities.Profile, error) {
	out := make(map[int64]*entities.Profile, len(fids))
	for start := 0; start < len(fids); start += maxBulkFIDs {
		end := start + maxBulkFIDs
		if end > len(fids) {
			end = len(fids)
		}

		ids := make([]string, 0, end-start)
		for _, fid := range fids[start:end] {
			ids = append(ids, strconv.FormatInt(fid, 10))
		}

		var resp bulkUsersResponse
		query := url.Values{"fids": {strings.Join(ids, ",")}}
		if err := c.get(ctx, "/v2/farcaster/user/bulk", query, &resp); err != nil {
			return nil, fmt.Errorf("failed to look up fids: %w", err)
		}
		for _, u := range resp.Users {
			out[u.FID] = u.toProfile()
		}
	}
	return out, nil
}

// ProfileByAddress resolves the identity that verified the address. A missing
// identity is nil, nil.
func (c *Client) ProfileByAddress(ctx context.Context, address string) (*entities.Profile, error) {
	key := strings.ToLower(address)

	var resp map[string][]userResponse
	query := url.Values{"addresses": {key}}
	if err := c.get(ctx, "/v2/farcaster/user/bulk-by-address", query, &resp); err != nil {
		var status *statusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up address %s: %w", address, err)
	}

	for addr, users := range resp {
		if strings.EqualFold(addr, key) && len(users) > 0 {
			profile := users[0].toProfile()
			profile.PrimaryAddress = address
			return profile, nil
		}
	}
	return nil, nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.Code, e.Body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
