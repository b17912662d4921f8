// Package auth implements the two-phase Minecraft handshake: serverId
// issuance and the parallel hasJoined query against the configured external
// validators.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crescent-mc/chisel/internal/user"
)

const (
	// Timeout is the hard cap per external validator request.
	Timeout = 10 * time.Second
	// userAgent is sent on every validator request.
	userAgent = "chisel"
)

// DefaultProviders returns the stock validator list: Mojang and Ely.by.
func DefaultProviders() []user.Provider {
	return []user.Provider{
		{Name: "Mojang", URL: "https://sessionserver.mojang.com/session/minecraft/hasJoined"},
		{Name: "ElyBy", URL: "http://minecraft.ely.by/session/hasJoined"},
	}
}

// Result is a successful validation: the verified UUID and the provider
// that vouched for it.
type Result struct {
	UUID     uuid.UUID
	Provider user.Provider
}

// Orchestrator queries all configured providers in parallel.
type Orchestrator struct {
	client *http.Client
	log    zerolog.Logger
}

// NewOrchestrator builds an orchestrator around the given client; a nil
// client gets a default one with the validator timeout.
func NewOrchestrator(client *http.Client, log zerolog.Logger) *Orchestrator {
	if client == nil {
		client = &http.Client{Timeout: Timeout}
	}
	return &Orchestrator{client: client, log: log}
}

// HasJoined asks every provider whether the player completed the handshake.
// The first success wins and cancels the rest. When all providers complete
// without a success: at least one transport/decode error yields an
// aggregate error, otherwise (nil, nil) — no provider recognized the
// player, which is a negative answer, not a failure.
func (o *Orchestrator) HasJoined(ctx context.Context, providers []user.Provider, serverID, nickname string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		result *Result
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, provider := range providers {
		g.Go(func() error {
			res, err := o.query(ctx, provider, serverID, nickname)
			if err != nil {
				o.log.Warn().Err(err).Str("provider", provider.Name).Msg("Validator request failed")
				return fmt.Errorf("%s: %w", provider.Name, err)
			}
			if res == nil {
				o.log.Debug().Str("provider", provider.Name).Str("nickname", nickname).Msg("Validator miss")
				return nil
			}
			mu.Lock()
			if result == nil {
				result = res
			}
			mu.Unlock()
			cancel() // first success wins
			return nil
		})
	}
	err := g.Wait()

	mu.Lock()
	defer mu.Unlock()
	if result != nil {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("external validators: %w", err)
	}
	return nil, nil
}

func (o *Orchestrator) query(ctx context.Context, provider user.Provider, serverID, nickname string) (*Result, error) {
	query := url.Values{"serverId": {serverID}, "username": {nickname}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.URL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		// A cancellation caused by another provider's success is not an
		// error worth aggregating.
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Mojang answers 204, Ely.by 401; any non-200 is a miss.
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode hasJoined body: %w", err)
	}
	id, err := uuid.Parse(payload.ID)
	if err != nil {
		return nil, fmt.Errorf("parse hasJoined id: %w", err)
	}
	return &Result{UUID: id, Provider: provider}, nil
}

// NewServerID issues the ephemeral handshake token: SHA-1 over 50 random
// bytes, truncated to 20 bytes, lower-case hex — 40 characters.
func NewServerID() (string, error) {
	seed := make([]byte, 50)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("draw serverId entropy: %w", err)
	}
	sum := sha1.Sum(seed)
	return hex.EncodeToString(sum[:20]), nil
}
