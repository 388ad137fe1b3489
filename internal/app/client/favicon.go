package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/semaphore"

	"ncpass/internal/domain/vault"
)

// maxFaviconFetches ограничивает число одновременных загрузок иконок
const maxFaviconFetches = 4

// FaviconRequest - запрос иконки: для записи хранилища или для произвольного URL
type FaviconRequest interface {
	faviconURL() string
}

// RecordFavicon - иконка сохраняется в запись зеркала, если ее URL не изменился
type RecordFavicon struct {
	PasswordID string
	URL        string
}

// AdHocURLFavicon - иконка для URL, не связанного с записью (например, при редактировании).
// Done вызывается только при успешной загрузке.
type AdHocURLFavicon struct {
	URL  string
	Done func(data []byte)
}

func (r RecordFavicon) faviconURL() string   { return r.URL }
func (r AdHocURLFavicon) faviconURL() string { return r.URL }

// faviconHost извлекает имя хоста; URL без схемы считается https
func faviconHost(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("пустой URL")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("некорректный URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("URL без имени хоста")
	}
	return host, nil
}

// taskSet - набор фоновых задач с общей отменой.
// После Close новые задачи не запускаются.
type taskSet struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    *semaphore.Weighted
	closed bool
}

func newTaskSet(limit int64) *taskSet {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskSet{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(limit),
	}
}

// Go запускает задачу в фоне, не блокируя вызывающего
func (t *taskSet) Go(fn func(ctx context.Context)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		if err := t.sem.Acquire(t.ctx, 1); err != nil {
			return
		}
		defer t.sem.Release(1)

		fn(t.ctx)
	}()
	return true
}

// Wait дожидается завершения запущенных задач
func (t *taskSet) Wait() {
	t.wg.Wait()
}

// Close отменяет все задачи и дожидается их завершения
func (t *taskSet) Close() {
	t.mu.Lock()
	t.closed = true
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()
}

// fetchFavicon берет иконку из кэша или загружает с сервера
func (a *App) fetchFavicon(ctx context.Context, rawURL string) ([]byte, error) {
	host, err := faviconHost(rawURL)
	if err != nil {
		return nil, err
	}

	if data, ok, err := a.storage.GetFavicon(host); err != nil {
		a.log.Debug("Ошибка чтения кэша иконок", slog.String("host", host), slog.String("error", err.Error()))
	} else if ok {
		return data, nil
	}

	data, err := a.currentVault().Favicon(ctx, host)
	if err != nil {
		return nil, err
	}

	if err := a.storage.SaveFavicon(host, data); err != nil {
		a.log.Debug("Не удалось сохранить иконку в кэш", slog.String("host", host), slog.String("error", err.Error()))
	}
	return data, nil
}

// RequestFavicon загружает иконку в фоне. Ошибки не сообщаются:
// при неудаче иконка просто остается пустой.
func (a *App) RequestFavicon(req FaviconRequest) {
	if req.faviconURL() == "" {
		return
	}

	a.tasks().Go(func(ctx context.Context) {
		data, err := a.fetchFavicon(ctx, req.faviconURL())
		if err != nil {
			a.log.Debug("Иконка не загружена", slog.String("error", err.Error()))
			return
		}

		switch r := req.(type) {
		case RecordFavicon:
			a.mirror.SetFavicon(r.PasswordID, r.URL, data)
		case AdHocURLFavicon:
			if r.Done != nil {
				r.Done(data)
			}
		}
	})
}

// LoadFavicon запрашивает иконку для записи зеркала
func (a *App) LoadFavicon(passwordID string) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	p, ok := a.mirror.Password(passwordID)
	if !ok {
		return fmt.Errorf("%w: password %s", vault.ErrNotFound, passwordID)
	}
	if p.Favicon == nil {
		a.RequestFavicon(RecordFavicon{PasswordID: p.ID, URL: p.URL})
	}
	return nil
}

// FaviconForURL синхронно загружает иконку; ok=false, если загрузить не удалось
func (a *App) FaviconForURL(ctx context.Context, rawURL string) ([]byte, bool) {
	data, err := a.fetchFavicon(ctx, rawURL)
	if err != nil {
		a.log.Debug("Иконка не загружена", slog.String("error", err.Error()))
		return nil, false
	}
	return data, true
}
