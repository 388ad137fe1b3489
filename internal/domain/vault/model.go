package vault

import (
	"github.com/google/uuid"
)

// BaseFolderID идентификатор корневой папки ("без папки")
var BaseFolderID = uuid.Nil.String()

const BaseFolderLabel = "Home"

type Status int

const (
	StatusGood Status = iota
	StatusWeak
	StatusBad
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusWeak:
		return "weak"
	case StatusBad:
		return "bad"
	}
	return "unknown"
}

type FieldType string

const (
	FieldText   FieldType = "text"
	FieldEmail  FieldType = "email"
	FieldURL    FieldType = "url"
	FieldSecret FieldType = "secret"
)

type CustomField struct {
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
	Value string    `json:"value"`
}

// Password - учетная запись, хранимая в хранилище
type Password struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`
	URL          string        `json:"url"`
	Username     string        `json:"username"`
	Password     string        `json:"password"`
	Notes        string        `json:"notes"`
	Hash         string        `json:"hash"`
	Folder       string        `json:"folder"`
	CustomFields []CustomField `json:"customFields"`
	Tags         []Tag         `json:"tags"`
	Favorite     bool          `json:"favorite"`
	Shared       bool          `json:"shared"`
	Status       Status        `json:"status"`
	Created      int64         `json:"created"`
	Edited       int64         `json:"edited"`

	// Favicon подгружается отдельно и не приходит с сервера
	Favicon []byte `json:"-"`
}

func (p Password) RecordID() string  { return p.ID }
func (p Password) SortLabel() string { return p.Label }

// HasTag проверяет, отмечена ли запись тегом
func (p Password) HasTag(tagID string) bool {
	for _, t := range p.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

type Folder struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Parent   string `json:"parent"`
	Favorite bool   `json:"favorite"`
	Created  int64  `json:"created"`
	Edited   int64  `json:"edited"`
}

func (f Folder) RecordID() string  { return f.ID }
func (f Folder) SortLabel() string { return f.Label }

// IsBase проверяет, является ли папка синтетической корневой
func (f Folder) IsBase() bool {
	return f.ID == BaseFolderID
}

// BaseFolder возвращает синтетическую корневую папку
func BaseFolder() Folder {
	return Folder{ID: BaseFolderID, Label: BaseFolderLabel, Parent: BaseFolderID}
}

type Tag struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Favorite bool   `json:"favorite"`
	Created  int64  `json:"created"`
	Edited   int64  `json:"edited"`
}

func (t Tag) RecordID() string  { return t.ID }
func (t Tag) SortLabel() string { return t.Label }

// Credentials - данные сессии, выданные сервером после входа
type Credentials struct {
	Server      string `json:"server"`
	LoginName   string `json:"loginName"`
	AppPassword string `json:"appPassword"`
}

func (c Credentials) Empty() bool {
	return c.Server == "" || c.LoginName == "" || c.AppPassword == ""
}

// LoginFlow - незавершенный вход через Login Flow v2
type LoginFlow struct {
	LoginURL     string `json:"login"`
	PollEndpoint string `json:"endpoint"`
	PollToken    string `json:"token"`
}
