package vault

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
)

// PasswordRequest - поля записи, отправляемые при создании и обновлении
type PasswordRequest struct {
	Label        string        `json:"label"`
	Username     string        `json:"username"`
	Password     string        `json:"password"`
	URL          string        `json:"url"`
	Notes        string        `json:"notes"`
	Folder       string        `json:"folder"`
	CustomFields []CustomField `json:"customFields"`
	TagIDs       []string      `json:"tags"`
	Favorite     bool          `json:"favorite"`
}

type FolderRequest struct {
	Label    string `json:"label"`
	Parent   string `json:"parent"`
	Favorite bool   `json:"favorite"`
}

type TagRequest struct {
	Label    string `json:"label"`
	Color    string `json:"color"`
	Favorite bool   `json:"favorite"`
}

// MutationResponse - ответ create/update/delete, сервер возвращает только идентификатор
type MutationResponse struct {
	ID       string `json:"id"`
	Revision string `json:"revision"`
}

type GeneratedPassword struct {
	Password string   `json:"password"`
	Words    []string `json:"words"`
	Strength int      `json:"strength"`
}

// PasswordRequestFrom заполняет запрос из существующей записи
func PasswordRequestFrom(p Password) PasswordRequest {
	tagIDs := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tagIDs = append(tagIDs, t.ID)
	}
	return PasswordRequest{
		Label:        p.Label,
		Username:     p.Username,
		Password:     p.Password,
		URL:          p.URL,
		Notes:        p.Notes,
		Folder:       p.Folder,
		CustomFields: p.CustomFields,
		TagIDs:       tagIDs,
		Favorite:     p.Favorite,
	}
}

// SecretHash вычисляет SHA-1 секрета, который API требует в поле hash
func SecretHash(secret string) string {
	sum := sha1.Sum([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (r PasswordRequest) Form() (url.Values, error) {
	fields := r.CustomFields
	if fields == nil {
		fields = []CustomField{}
	}
	customFields, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	folder := r.Folder
	if folder == "" {
		folder = BaseFolderID
	}

	form := url.Values{}
	form.Set("label", r.Label)
	form.Set("username", r.Username)
	form.Set("password", r.Password)
	form.Set("hash", SecretHash(r.Password))
	form.Set("url", r.URL)
	form.Set("notes", r.Notes)
	form.Set("folder", folder)
	form.Set("customFields", string(customFields))
	form.Set("favorite", strconv.FormatBool(r.Favorite))
	for _, id := range r.TagIDs {
		form.Add("tags[]", id)
	}
	return form, nil
}

func (r FolderRequest) Form() url.Values {
	parent := r.Parent
	if parent == "" {
		parent = BaseFolderID
	}

	form := url.Values{}
	form.Set("label", r.Label)
	form.Set("parent", parent)
	form.Set("favorite", strconv.FormatBool(r.Favorite))
	return form
}

func (r TagRequest) Form() url.Values {
	form := url.Values{}
	form.Set("label", r.Label)
	form.Set("color", r.Color)
	form.Set("favorite", strconv.FormatBool(r.Favorite))
	return form
}
