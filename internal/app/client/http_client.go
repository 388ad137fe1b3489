package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"ncpass/internal/app/client/config"
	"ncpass/internal/domain/vault"
)

const (
	apiPath        = "/index.php/apps/passwords/api/1.0"
	appPasswordURL = "/ocs/v2.php/core/apppassword"
	detailsLevel   = "model+tags"
	faviconSize    = 256
)

const (
	resourcePassword = "password"
	resourceFolder   = "folder"
	resourceTag      = "tag"
)

type httpClient struct {
	client    *http.Client
	log       *slog.Logger
	userAgent string

	mu    sync.RWMutex
	creds vault.Credentials

	pollInterval time.Duration
	pollAttempts int
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *httpClient {
	client := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &httpClient{
		client:       client,
		log:          log.With(slog.String("component", "vault_client")),
		userAgent:    cfg.UserAgent,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
}

// Login запоминает учетные данные; все последующие запросы
// отправляются с HTTP Basic авторизацией. Сетевых запросов не делает.
func (h *httpClient) Login(creds vault.Credentials) {
	creds.Server = strings.TrimRight(creds.Server, "/")

	h.mu.Lock()
	defer h.mu.Unlock()
	h.creds = creds
}

func (h *httpClient) Credentials() vault.Credentials {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.creds
}

// ==================== Passwords ====================

func (h *httpClient) ListPasswords(ctx context.Context) ([]vault.Password, error) {
	return listRequest[vault.Password](ctx, h, resourcePassword, url.Values{"details": {detailsLevel}})
}

func (h *httpClient) ShowPassword(ctx context.Context, id string) (vault.Password, error) {
	return showRequest[vault.Password](ctx, h, resourcePassword, id, url.Values{"details": {detailsLevel}})
}

func (h *httpClient) CreatePassword(ctx context.Context, req vault.PasswordRequest) (string, error) {
	form, err := req.Form()
	if err != nil {
		return "", vault.RequestFailed("create password", err)
	}
	return h.mutate(ctx, http.MethodPost, resourcePassword, "create", form)
}

func (h *httpClient) UpdatePassword(ctx context.Context, id string, req vault.PasswordRequest) (string, error) {
	form, err := req.Form()
	if err != nil {
		return "", vault.RequestFailed("update password", err)
	}
	form.Set("id", id)
	return h.mutate(ctx, http.MethodPatch, resourcePassword, "update", form)
}

func (h *httpClient) DeletePassword(ctx context.Context, id string) error {
	_, err := h.mutate(ctx, http.MethodDelete, resourcePassword, "delete", url.Values{"id": {id}})
	return err
}

// ==================== Folders ====================

func (h *httpClient) ListFolders(ctx context.Context) ([]vault.Folder, error) {
	return listRequest[vault.Folder](ctx, h, resourceFolder, nil)
}

func (h *httpClient) ShowFolder(ctx context.Context, id string) (vault.Folder, error) {
	return showRequest[vault.Folder](ctx, h, resourceFolder, id, nil)
}

func (h *httpClient) CreateFolder(ctx context.Context, req vault.FolderRequest) (string, error) {
	return h.mutate(ctx, http.MethodPost, resourceFolder, "create", req.Form())
}

func (h *httpClient) UpdateFolder(ctx context.Context, id string, req vault.FolderRequest) (string, error) {
	form := req.Form()
	form.Set("id", id)
	return h.mutate(ctx, http.MethodPatch, resourceFolder, "update", form)
}

func (h *httpClient) DeleteFolder(ctx context.Context, id string) error {
	_, err := h.mutate(ctx, http.MethodDelete, resourceFolder, "delete", url.Values{"id": {id}})
	return err
}

// ==================== Tags ====================

func (h *httpClient) ListTags(ctx context.Context) ([]vault.Tag, error) {
	return listRequest[vault.Tag](ctx, h, resourceTag, nil)
}

func (h *httpClient) ShowTag(ctx context.Context, id string) (vault.Tag, error) {
	return showRequest[vault.Tag](ctx, h, resourceTag, id, nil)
}

func (h *httpClient) CreateTag(ctx context.Context, req vault.TagRequest) (string, error) {
	return h.mutate(ctx, http.MethodPost, resourceTag, "create", req.Form())
}

func (h *httpClient) UpdateTag(ctx context.Context, id string, req vault.TagRequest) (string, error) {
	form := req.Form()
	form.Set("id", id)
	return h.mutate(ctx, http.MethodPatch, resourceTag, "update", form)
}

func (h *httpClient) DeleteTag(ctx context.Context, id string) error {
	_, err := h.mutate(ctx, http.MethodDelete, resourceTag, "delete", url.Values{"id": {id}})
	return err
}

// ==================== Services ====================

// GeneratePassword запрашивает у сервера случайный пароль
func (h *httpClient) GeneratePassword(ctx context.Context) (string, error) {
	resp, err := h.doRequest(ctx, http.MethodGet, h.apiURL("/service/password"), nil, true)
	if err != nil {
		return "", vault.RequestFailed("generate password", err)
	}

	var generated vault.GeneratedPassword
	if err := h.parseResponse(resp, &generated); err != nil {
		return "", vault.RequestFailed("generate password", err)
	}
	if generated.Password == "" {
		return "", vault.RequestFailed("generate password", fmt.Errorf("сервер вернул пустой пароль"))
	}

	return generated.Password, nil
}

// Favicon загружает иконку сайта по имени хоста
func (h *httpClient) Favicon(ctx context.Context, host string) ([]byte, error) {
	path := fmt.Sprintf("/service/favicon/%s/%d", url.PathEscape(host), faviconSize)
	resp, err := h.doRequest(ctx, http.MethodGet, h.apiURL(path), nil, true)
	if err != nil {
		return nil, vault.RequestFailed("favicon", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, vault.RequestFailed("favicon", fmt.Errorf("сервер вернул статус: %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vault.RequestFailed("favicon", err)
	}
	return data, nil
}

// RevokeAppPassword отзывает пароль приложения на сервере
func (h *httpClient) RevokeAppPassword(ctx context.Context) error {
	creds := h.Credentials()
	if creds.Empty() {
		return vault.ErrNotLoggedIn
	}

	req, err := h.newRequest(ctx, http.MethodDelete, creds.Server+appPasswordURL, nil, true)
	if err != nil {
		return vault.RequestFailed("revoke app password", err)
	}
	req.Header.Set("OCS-APIREQUEST", "true")

	resp, err := h.send(req)
	if err != nil {
		return vault.RequestFailed("revoke app password", err)
	}
	if err := h.parseResponse(resp, nil); err != nil {
		return vault.RequestFailed("revoke app password", err)
	}
	return nil
}

// ==================== Transport ====================

func listRequest[T any](ctx context.Context, h *httpClient, resource string, params url.Values) ([]T, error) {
	op := "list " + resource
	resp, err := h.doRequest(ctx, http.MethodGet, h.apiURL("/"+resource+"/list"), params, true)
	if err != nil {
		return nil, vault.RequestFailed(op, err)
	}

	var items []T
	if err := h.parseResponse(resp, &items); err != nil {
		return nil, vault.RequestFailed(op, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func showRequest[T any](ctx context.Context, h *httpClient, resource, id string, params url.Values) (T, error) {
	var item T
	op := "show " + resource

	form := url.Values{"id": {id}}
	for k, v := range params {
		form[k] = v
	}

	resp, err := h.doRequest(ctx, http.MethodPost, h.apiURL("/"+resource+"/show"), form, true)
	if err != nil {
		return item, vault.RequestFailed(op, err)
	}
	if err := h.parseResponse(resp, &item); err != nil {
		return item, vault.RequestFailed(op, err)
	}
	return item, nil
}

func (h *httpClient) mutate(ctx context.Context, method, resource, action string, form url.Values) (string, error) {
	op := action + " " + resource
	resp, err := h.doRequest(ctx, method, h.apiURL("/"+resource+"/"+action), form, true)
	if err != nil {
		return "", vault.RequestFailed(op, err)
	}

	var result vault.MutationResponse
	if err := h.parseResponse(resp, &result); err != nil {
		return "", vault.RequestFailed(op, err)
	}
	if result.ID == "" {
		return "", vault.RequestFailed(op, fmt.Errorf("сервер не вернул идентификатор"))
	}
	return result.ID, nil
}

func (h *httpClient) apiURL(path string) string {
	return h.Credentials().Server + apiPath + path
}

func (h *httpClient) newRequest(ctx context.Context, method, rawURL string, form url.Values, auth bool) (*http.Request, error) {
	var body io.Reader
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
	default:
		if len(form) > 0 {
			rawURL += "?" + form.Encode()
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.userAgent)

	if auth {
		creds := h.Credentials()
		if creds.Empty() {
			return nil, vault.ErrNotLoggedIn
		}
		req.SetBasicAuth(creds.LoginName, creds.AppPassword)
	}

	return req, nil
}

func (h *httpClient) send(req *http.Request) (*http.Response, error) {
	h.log.Debug("Отправка запроса",
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	return resp, nil
}

func (h *httpClient) doRequest(ctx context.Context, method, rawURL string, form url.Values, auth bool) (*http.Response, error) {
	req, err := h.newRequest(ctx, method, rawURL, form, auth)
	if err != nil {
		return nil, err
	}
	return h.send(req)
}

func (h *httpClient) parseResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	// Тело не логируем: в нем пароли
	h.log.Debug("Получен ответ",
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("ошибка сервера: %s", errResp.Message)
		}
		return fmt.Errorf("ошибка сервера: статус %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}
