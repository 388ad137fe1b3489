package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"ncpass/internal/domain/vault"
)

const (
	loginFlowPath = "/index.php/login/v2"

	// 121 попытка с интервалом 500 мс - примерно минута на подтверждение
	defaultPollInterval = 500 * time.Millisecond
	defaultPollAttempts = 121
)

// StartLogin начинает вход через Login Flow v2. Пользователь должен открыть
// LoginURL в браузере и подтвердить доступ.
func (h *httpClient) StartLogin(ctx context.Context, serverURL string) (vault.LoginFlow, error) {
	var flow vault.LoginFlow

	endpoint := strings.TrimRight(serverURL, "/") + loginFlowPath
	resp, err := h.doRequest(ctx, http.MethodPost, endpoint, url.Values{}, false)
	if err != nil {
		return flow, vault.RequestFailed("start login", err)
	}

	var result struct {
		Poll struct {
			Token    string `json:"token"`
			Endpoint string `json:"endpoint"`
		} `json:"poll"`
		Login string `json:"login"`
	}
	if err := h.parseResponse(resp, &result); err != nil {
		return flow, vault.RequestFailed("start login", err)
	}

	flow = vault.LoginFlow{
		LoginURL:     result.Login,
		PollEndpoint: result.Poll.Endpoint,
		PollToken:    result.Poll.Token,
	}
	return flow, nil
}

// PollLogin опрашивает endpoint, пока пользователь не подтвердит вход.
// Любая ошибка отдельной попытки означает "еще не подтверждено".
// Возвращает nil без ошибки, если попытки закончились.
func (h *httpClient) PollLogin(ctx context.Context, endpoint, token string) (*vault.Credentials, error) {
	form := url.Values{"token": {token}}

	for attempt := 1; attempt <= h.pollAttempts; attempt++ {
		if creds, ok := h.pollOnce(ctx, endpoint, form); ok {
			h.log.Info("Вход подтвержден", slog.Int("attempt", attempt), slog.String("login", creds.LoginName))
			return creds, nil
		}

		if attempt == h.pollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.pollInterval):
		}
	}

	h.log.Warn("Вход не подтвержден за отведенное время", slog.Int("attempts", h.pollAttempts))
	return nil, nil
}

func (h *httpClient) pollOnce(ctx context.Context, endpoint string, form url.Values) (*vault.Credentials, bool) {
	resp, err := h.doRequest(ctx, http.MethodPost, endpoint, form, false)
	if err != nil {
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, false
	}

	var creds vault.Credentials
	if err := h.parseResponse(resp, &creds); err != nil || creds.Empty() {
		return nil, false
	}
	return &creds, true
}
