package password

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/internal/domain/vault"
)

// PasswordCmd - родительская команда для всех операций с записями
var PasswordCmd = &cobra.Command{
	Use:     "password",
	Aliases: []string{"pw"},
	Short:   "Управление записями",
	Long:    `Просмотр, поиск, создание, изменение и удаление записей хранилища.`,
}

const mask = "••••••••"

var (
	favoriteMark = color.New(color.FgYellow).SprintFunc()
	weakMark     = color.New(color.FgYellow).SprintFunc()
	badMark      = color.New(color.FgRed, color.Bold).SprintFunc()
	dimmed       = color.New(color.Faint).SprintFunc()
)

func statusLabel(s vault.Status) string {
	switch s {
	case vault.StatusWeak:
		return weakMark(s.String())
	case vault.StatusBad:
		return badMark(s.String())
	}
	return s.String()
}

func printPasswords(passwords []vault.Password) {
	if len(passwords) == 0 {
		fmt.Println("Записи не найдены")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\tНазвание\tЛогин\tURL\tСтатус\tID\t\n")
	for _, p := range passwords {
		star := " "
		if p.Favorite {
			star = favoriteMark("★")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			star,
			truncate(p.Label, 30),
			truncate(p.Username, 24),
			truncate(p.URL, 32),
			statusLabel(p.Status),
			dimmed(p.ID),
		)
	}
	w.Flush()
	fmt.Printf("\nВсего записей: %d\n", len(passwords))
}

func printPassword(p vault.Password, reveal bool) {
	secret := mask
	if reveal {
		secret = p.Password
	}

	title := p.Label
	if p.Favorite {
		title = favoriteMark("★ ") + title
	}
	color.New(color.Bold).Println(title)

	fmt.Printf("  ID:       %s\n", dimmed(p.ID))
	fmt.Printf("  Логин:    %s\n", p.Username)
	fmt.Printf("  Пароль:   %s\n", secret)
	if p.URL != "" {
		fmt.Printf("  URL:      %s\n", p.URL)
	}
	fmt.Printf("  Статус:   %s\n", statusLabel(p.Status))
	if len(p.Tags) > 0 {
		labels := make([]string, 0, len(p.Tags))
		for _, t := range p.Tags {
			labels = append(labels, t.Label)
		}
		fmt.Printf("  Теги:     %s\n", strings.Join(labels, ", "))
	}
	if p.Notes != "" {
		fmt.Printf("  Заметки:  %s\n", p.Notes)
	}
	for _, f := range p.CustomFields {
		value := f.Value
		if f.Type == vault.FieldSecret && !reveal {
			value = mask
		}
		fmt.Printf("  %s: %s\n", f.Label, value)
	}
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func init() {
	PasswordCmd.AddCommand(ListCmd)
	PasswordCmd.AddCommand(ShowCmd)
	PasswordCmd.AddCommand(CreateCmd)
	PasswordCmd.AddCommand(UpdateCmd)
	PasswordCmd.AddCommand(DeleteCmd)
	PasswordCmd.AddCommand(GenerateCmd)
}
